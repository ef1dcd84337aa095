package risk

import (
	"math"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/StefanIliev545/kapan-sub001/internal/types"
)

const (
	leverageFloor = 1.0
	// leverageCap 防止 LTV 逼近 100% 时杠杆发散
	leverageCap = 100.0
)

func clampLeverage(l float64) float64 {
	if l < leverageFloor || math.IsNaN(l) {
		return leverageFloor
	}
	if l > leverageCap {
		return leverageCap
	}
	return l
}

func round2(l float64) float64 {
	return decimal.NewFromFloat(l).Round(2).InexactFloat64()
}

// MaxLeverage 由协议 LTV 推导理论最大杠杆：L = 1 / (1 - ltv)，下限 1，上限 100
func MaxLeverage(ltv types.Bps) float64 {
	if ltv == 0 {
		return leverageFloor
	}
	if ltv >= types.BpsDenominator {
		return leverageCap
	}
	l := 1.0 / (1.0 - float64(ltv)/types.BpsDenominator)
	return round2(clampLeverage(l))
}

// MaxLeverageWithSlippage 把 swap 滑点折进可达杠杆。
// 以 s 滑点成交时实际拿到的抵押品少于理论值，从目标 LTV 恒等式
// targetLtv = (L-1) / (1 + (L-1)(1-s)) 反解出 L = 1 + t / (1 - t(1-s))，
// 其中 t = (L_base-1)/L_base；结果与基准取较小者，保留两位小数。
// 固定 LTV 时该值对滑点单调不增。
func MaxLeverageWithSlippage(ltv, slippage types.Bps) float64 {
	base := MaxLeverage(ltv)
	if base <= leverageFloor {
		return leverageFloor
	}
	t := (base - 1.0) / base
	s := float64(slippage) / types.BpsDenominator
	denom := 1.0 - t*(1.0-s)
	if denom <= 0 {
		return base
	}
	l := 1.0 + t/denom
	if l > base {
		l = base
	}
	return round2(clampLeverage(l))
}

// BorrowUsd 需要借入的 USD 价值 = 保证金价值 × (杠杆 - 1)
func BorrowUsd(marginUsd decimal.Decimal, leverage float64) decimal.Decimal {
	if leverage <= 1 || marginUsd.Sign() <= 0 {
		return decimal.Zero
	}
	return marginUsd.Mul(decimal.NewFromFloat(leverage - 1))
}

// FlashLoanAmount 标准模式下的闪电贷规模（债务 token 最小单位，向下取整）。
// 保证金按抵押资产计价。
func FlashLoanAmount(snap types.PositionSnapshot) *uint256.Int {
	marginUsd := snap.Collateral.UsdValue(snap.Margin())
	return snap.Debt.TokensFromUsd(BorrowUsd(marginUsd, snap.Leverage))
}

// FlashLoanAmountZap zap 模式下的闪电贷规模：保证金本身就是债务资产
func FlashLoanAmountZap(snap types.PositionSnapshot) *uint256.Int {
	marginUsd := snap.Debt.UsdValue(snap.Margin())
	return snap.Debt.TokensFromUsd(BorrowUsd(marginUsd, snap.Leverage))
}

// HealthFactor = 总抵押价值 × 清算阈值 / 债务价值；无债务时为 +Inf
func HealthFactor(totalCollateralUsd, debtUsd decimal.Decimal, liquidationThreshold types.Bps) float64 {
	if debtUsd.Sign() == 0 {
		return math.Inf(1)
	}
	return totalCollateralUsd.Mul(liquidationThreshold.Ratio()).Div(debtUsd).InexactFloat64()
}

// LiquidationPrice 抵押品单价跌到何处触发清算：debtUsd / (collateralTokens × liqThreshold)。
// 无债务、无抵押或阈值为 0 时无定义，返回 nil。
func LiquidationPrice(debtUsd, collateralTokens decimal.Decimal, liquidationThreshold types.Bps) *decimal.Decimal {
	if debtUsd.Sign() == 0 || collateralTokens.Sign() == 0 || liquidationThreshold == 0 {
		return nil
	}
	p := debtUsd.Div(collateralTokens.Mul(liquidationThreshold.Ratio()))
	return &p
}

// Metrics 一次编译的风险指标汇总
type Metrics struct {
	Ltv                float64          // 实际 LTV = debtUsd / totalCollateralUsd
	LiquidationPrice   *decimal.Decimal // 无债务或无抵押时为 nil
	HealthFactor       float64          // 无债务时 +Inf
	TotalCollateralUsd decimal.Decimal
	DebtUsd            decimal.Decimal
}

// Compute 汇总风险指标。minCollateralOut 是 swap 按滑点折算后的最低到手抵押品。
// 输出必须与 MaxLeverage 所用的 LTV 自洽：用 DebtUsd/TotalCollateralUsd 反推 LTV
// 应不超过协议 LTV（测试据此校验）。
func Compute(snap types.PositionSnapshot, minCollateralOut *uint256.Int) Metrics {
	totalTokens := new(uint256.Int).Set(snap.Margin())
	if minCollateralOut != nil {
		totalTokens.Add(totalTokens, minCollateralOut)
	}
	return buildMetrics(snap, totalTokens, snap.Debt.UsdValue(FlashLoanAmount(snap)))
}

// ComputeZap zap 模式的指标。保证金是债务资产且整体并入 swap 输入，
// 抵押全部来自 swap 所得，不能再把保证金按抵押 token 计数。
func ComputeZap(snap types.PositionSnapshot, minCollateralOut *uint256.Int) Metrics {
	totalTokens := uint256.NewInt(0)
	if minCollateralOut != nil {
		totalTokens = new(uint256.Int).Set(minCollateralOut)
	}
	return buildMetrics(snap, totalTokens, snap.Debt.UsdValue(FlashLoanAmountZap(snap)))
}

func buildMetrics(snap types.PositionSnapshot, totalTokens *uint256.Int, debtUsd decimal.Decimal) Metrics {
	totalUsd := snap.Collateral.UsdValue(totalTokens)

	m := Metrics{
		TotalCollateralUsd: totalUsd,
		DebtUsd:            debtUsd,
		HealthFactor:       HealthFactor(totalUsd, debtUsd, snap.LiquidationThresholdBps),
	}

	humanTokens := decimal.NewFromBigInt(totalTokens.ToBig(), 0).Shift(-int32(snap.Collateral.Decimals))
	m.LiquidationPrice = LiquidationPrice(debtUsd, humanTokens, snap.LiquidationThresholdBps)

	if totalUsd.Sign() > 0 {
		m.Ltv = debtUsd.Div(totalUsd).InexactFloat64()
	}
	return m
}
