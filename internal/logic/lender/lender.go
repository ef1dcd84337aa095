package lender

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/StefanIliev545/kapan-sub001/internal/types"
)

// Lender 一个可用的闪电贷出借方
type Lender struct {
	Address common.Address
	FeeBps  types.Bps
}

// Registry 按链维护的出借方表。
// 选择规则：0 费率绝对优先（Balancer 式 > Aave 式），其次费率最低，同费率保持注册顺序。
type Registry struct {
	byChain map[uint32][]Lender
}

func NewRegistry() *Registry {
	return &Registry{byChain: make(map[uint32][]Lender)}
}

func (r *Registry) Add(chainID uint32, l Lender) {
	r.byChain[chainID] = append(r.byChain[chainID], l)
}

// Select 为指定链选择最优出借方；该链无出借方时返回 false
func (r *Registry) Select(chainID uint32) (Lender, bool) {
	candidates := r.byChain[chainID]
	if len(candidates) == 0 {
		return Lender{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.FeeBps < best.FeeBps {
			best = c
		}
	}
	return best, true
}

// Fee 闪电贷费用 = amount * feeBps / 10000，向下取整
func Fee(amount *uint256.Int, feeBps types.Bps) *uint256.Int {
	if amount == nil || amount.IsZero() || feeBps == 0 {
		return uint256.NewInt(0)
	}
	fee := new(uint256.Int).Mul(amount, uint256.NewInt(uint64(feeBps)))
	return fee.Div(fee, uint256.NewInt(types.BpsDenominator))
}

// FlashLoanConfig 单次编译选定的闪电贷参数
type FlashLoanConfig struct {
	Lender common.Address
	Token  common.Address
	Amount *uint256.Int
	FeeBps types.Bps
}

// Fee 按本配置的金额计算费用
func (c FlashLoanConfig) Fee() *uint256.Int {
	return Fee(c.Amount, c.FeeBps)
}

// RepaymentAmount 闪电贷归还额 = 本金 + 费用
func (c FlashLoanConfig) RepaymentAmount() *uint256.Int {
	if c.Amount == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Add(c.Amount, c.Fee())
}
