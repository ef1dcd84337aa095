package svc

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/StefanIliev545/kapan-sub001/internal/cache"
	"github.com/StefanIliev545/kapan-sub001/internal/config"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/flow"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/lender"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/protocol"
	"github.com/StefanIliev545/kapan-sub001/internal/types"
	"github.com/StefanIliev545/kapan-sub001/pkg/logger"
)

// ServiceContext 计划服务的共享资源：配置、编译器环境、出借方表与价格缓存。
// 核心编译逻辑本身无状态，这里只放边界层的装配结果。
type ServiceContext struct {
	Config     config.PlannerConfig
	Compiler   flow.Compiler
	Lenders    *lender.Registry
	PriceCache *cache.PriceCache
}

// NewServiceContext 根据配置装配服务上下文
func NewServiceContext(c config.PlannerConfig) (*ServiceContext, error) {
	if !common.IsHexAddress(c.Router) {
		return nil, fmt.Errorf("invalid router address %q", c.Router)
	}

	// 1. 用部署配置覆盖协议注册表的默认市场地址
	for _, pc := range c.Protocols {
		p, err := types.TryProtocolFromName(pc.Name)
		if err != nil {
			return nil, err
		}
		if !common.IsHexAddress(pc.Market) {
			return nil, fmt.Errorf("protocol %s: invalid market address %q", pc.Name, pc.Market)
		}
		strat, err := protocol.Lookup(p)
		if err != nil {
			return nil, err
		}
		protocol.Register(p, protocol.Strategy{Surface: strat.Surface, Market: common.HexToAddress(pc.Market)})
	}

	// 2. 装配闪电贷出借方表（配置顺序即偏好顺序）
	lenders := lender.NewRegistry()
	for _, lc := range c.Lenders {
		if !common.IsHexAddress(lc.Address) {
			return nil, fmt.Errorf("invalid lender address %q", lc.Address)
		}
		lenders.Add(c.ChainID, lender.Lender{
			Address: common.HexToAddress(lc.Address),
			FeeBps:  types.Bps(lc.FeeBps),
		})
	}

	ctx := &ServiceContext{
		Config:     c,
		Compiler:   flow.New(common.HexToAddress(c.Router)),
		Lenders:    lenders,
		PriceCache: cache.NewPriceCache(),
	}

	logger.Infof("计划服务上下文初始化完成：chain=%d router=%s protocols=%d lenders=%d",
		c.ChainID, c.Router, len(c.Protocols), len(c.Lenders))
	return ctx, nil
}

// ProtocolStrategy 按协议名解析编码策略（请求路径使用）
func (ctx *ServiceContext) ProtocolStrategy(name string) (types.Protocol, protocol.Strategy, error) {
	p, err := types.TryProtocolFromName(name)
	if err != nil {
		return types.ProtocolUnknown, protocol.Strategy{}, err
	}
	s, err := protocol.Lookup(p)
	if err != nil {
		return types.ProtocolUnknown, protocol.Strategy{}, err
	}
	return p, s, nil
}
