package quote

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/StefanIliev545/kapan-sub001/internal/types"
)

// VenueQuote 单个聚合器/venue 已落定的报价结果。
// 列表是不可变输入：所有 venue 都已返回或确认不可用后才进入归约。
type VenueQuote struct {
	Venue     string
	Adapter   common.Address // 执行本报价 calldata 的适配器地址
	BuyAmount *uint256.Int
	Calldata  []byte
}

// Ready 判断报价是否可用于编译（适配器已知、成交额为正、calldata 非空）
func (q VenueQuote) Ready() bool {
	return q.Adapter != (common.Address{}) &&
		q.BuyAmount != nil && !q.BuyAmount.IsZero() &&
		len(q.Calldata) > 0
}

// Best 纯归约：在全部已落定的报价中选 buyAmount 最高者。
// 同一 chunk 永远只信任一个 venue 的 calldata；并列时保留先出现者。
func Best(quotes []VenueQuote) (VenueQuote, bool) {
	var best VenueQuote
	found := false
	for _, q := range quotes {
		if !q.Ready() {
			continue
		}
		if !found || q.BuyAmount.Gt(best.BuyAmount) {
			best = q
			found = true
		}
	}
	return best, found
}

// MinBuyAmount 按滑点折算最低可接受成交额：buy * (10000 - slippage) / 10000，向下取整
func MinBuyAmount(buy *uint256.Int, slippage types.Bps) *uint256.Int {
	if buy == nil || buy.IsZero() {
		return uint256.NewInt(0)
	}
	if slippage >= types.BpsDenominator {
		return uint256.NewInt(0)
	}
	out := new(uint256.Int).Mul(buy, uint256.NewInt(uint64(types.BpsDenominator-slippage)))
	return out.Div(out, uint256.NewInt(types.BpsDenominator))
}
