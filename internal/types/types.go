package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// PriceDecimals 预言机 USD 价格的固定小数位数（8 位定点）
	PriceDecimals = 8

	// BpsDenominator 基点分母：1 bps = 0.01%
	BpsDenominator = 10000
)

// Bps 基点值（万分之一），用于 LTV / 清算阈值 / 滑点 / 费率
type Bps uint32

// Ratio 把基点转换为 decimal 比例，例如 8000 → 0.8
func (b Bps) Ratio() decimal.Decimal {
	return decimal.New(int64(b), -4)
}

// AssetInfo 描述单个资产在一次编译快照中的静态信息
type AssetInfo struct {
	Address       common.Address
	Decimals      uint8
	PriceUsd      *uint256.Int // 8 位定点 USD 价格，0 或 nil 表示价格缺失
	WalletBalance *uint256.Int // 钱包余额（最小单位），仅供边界层校验使用
}

// HasPrice 判断该资产是否带有可用价格
func (a AssetInfo) HasPrice() bool {
	return a.PriceUsd != nil && !a.PriceUsd.IsZero()
}

// UsdValue 把最小单位的数量折算为 USD 价值：amount * price / 10^(decimals+8)
func (a AssetInfo) UsdValue(amount *uint256.Int) decimal.Decimal {
	if amount == nil || amount.IsZero() || !a.HasPrice() {
		return decimal.Zero
	}
	v := decimal.NewFromBigInt(amount.ToBig(), 0)
	p := decimal.NewFromBigInt(a.PriceUsd.ToBig(), 0)
	return v.Mul(p).Shift(-int32(a.Decimals) - PriceDecimals)
}

// TokensFromUsd 把 USD 价值折算回最小单位数量，向下取整；价格缺失时返回 0
func (a AssetInfo) TokensFromUsd(usd decimal.Decimal) *uint256.Int {
	if !a.HasPrice() || usd.Sign() <= 0 {
		return uint256.NewInt(0)
	}
	p := decimal.NewFromBigInt(a.PriceUsd.ToBig(), 0).Shift(-PriceDecimals)
	tokens := usd.Div(p).Shift(int32(a.Decimals))
	out, overflow := uint256.FromBig(tokens.BigInt())
	if overflow {
		return uint256.NewInt(0)
	}
	return out
}

// PositionSnapshot 一次编译调用的完整输入快照。
// 每次重算都要求一个全新的快照，核心内部不持有任何跨调用状态。
type PositionSnapshot struct {
	User     common.Address
	Protocol Protocol

	Collateral AssetInfo
	Debt       AssetInfo

	MarginAmount *uint256.Int // 用户自有保证金（collateral 最小单位；zap 模式下为 debt 最小单位）
	Leverage     float64      // 目标杠杆倍数，≥1
	SlippageBps  Bps

	ProtocolLtvBps          Bps
	LiquidationThresholdBps Bps
}

// Margin 返回保证金数量，nil 时视为 0
func (s PositionSnapshot) Margin() *uint256.Int {
	if s.MarginAmount == nil {
		return uint256.NewInt(0)
	}
	return s.MarginAmount
}
