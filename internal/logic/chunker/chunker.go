package chunker

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/StefanIliev545/kapan-sub001/internal/consts"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/lender"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/risk"
	"github.com/StefanIliev545/kapan-sub001/internal/types"
)

// Plan 调度器输出。
// Explanation 面向人类，MissingPriceData / CapacityExhausted 等退化情况通过
// NeedsChunking=false + 说明文本上报，而不是抛错。
type Plan struct {
	NumChunks     int
	ChunkSize     *uint256.Int   // 基准块大小（闪电贷分支为 floor(total/n)）
	ChunkSizes    []*uint256.Int // 每块大小，债务 token 最小单位
	UseFlashLoan  bool
	FlashLoanFees []*uint256.Int // 每块按自身大小独立计费（每块是一笔独立闪电贷）
	NeedsChunking bool
	Explanation   string
}

func degenerate(useFlashLoan bool, explanation string) Plan {
	return Plan{
		NumChunks:     1,
		ChunkSize:     uint256.NewInt(0),
		ChunkSizes:    []*uint256.Int{uint256.NewInt(0)},
		UseFlashLoan:  useFlashLoan,
		FlashLoanFees: []*uint256.Int{uint256.NewInt(0)},
		NeedsChunking: false,
		Explanation:   explanation,
	}
}

// SplitFlashLoan 把总债务量平均拆成 numChunks 块。
// 前 n-1 块为 floor(total/n)，末块吸收整数余数，保证 sum(chunkSizes) == total。
// numChunks 由调用方指定，钳制到 [1, 100]；total 为 0 时不做任何计算。
func SplitFlashLoan(total *uint256.Int, numChunks int, feeBps types.Bps) Plan {
	if total == nil || total.IsZero() {
		return degenerate(true, "总量为 0，无需拆分")
	}

	n := numChunks
	if n < 1 {
		n = 1
	}
	if n > consts.MaxChunks {
		n = consts.MaxChunks
	}

	base := new(uint256.Int).Div(total, uint256.NewInt(uint64(n)))
	sizes := make([]*uint256.Int, n)
	consumed := uint256.NewInt(0)
	for i := 0; i < n-1; i++ {
		sizes[i] = new(uint256.Int).Set(base)
		consumed.Add(consumed, base)
	}
	// 末块吸收余数
	sizes[n-1] = new(uint256.Int).Sub(total, consumed)

	fees := make([]*uint256.Int, n)
	for i, s := range sizes {
		fees[i] = lender.Fee(s, feeBps)
	}

	return Plan{
		NumChunks:     n,
		ChunkSize:     base,
		ChunkSizes:    sizes,
		UseFlashLoan:  true,
		FlashLoanFees: fees,
		NeedsChunking: n > 1,
		Explanation:   fmt.Sprintf("闪电贷拆分：%d 块，基准 %s，末块 %s（吸收整数余数）", n, base, sizes[n-1]),
	}
}

// PlanCapacity 无闪电贷时的容量驱动拆分。
// 每轮推演当前已存抵押品在 ltv×安全折扣 下可以支撑的新增借款，作为本块规模；
// 借得的债务按同一 swapRate 快照换成抵押品计入下一轮。
// swapRate 为卖出 1 单位债务（最小单位）换回的抵押品最小单位数。
//
// 推演全程复用同一个 swapRate，实际逐块结算时价格会漂移，NumChunks 只是预估。
func PlanCapacity(snap types.PositionSnapshot, ltv types.Bps, swapRate decimal.Decimal) Plan {
	return planCapacity(snap, ltv, swapRate,
		risk.FlashLoanAmount(snap),
		snap.Collateral.UsdValue(snap.Margin()))
}

// PlanCapacityZap zap 模式的容量驱动拆分：保证金本身是债务资产，
// 目标债务与首轮已存价值都按债务计价（首块先把保证金换成抵押品存入）。
func PlanCapacityZap(snap types.PositionSnapshot, ltv types.Bps, swapRate decimal.Decimal) Plan {
	return planCapacity(snap, ltv, swapRate,
		risk.FlashLoanAmountZap(snap),
		snap.Debt.UsdValue(snap.Margin()))
}

func planCapacity(snap types.PositionSnapshot, ltv types.Bps, swapRate decimal.Decimal, totalDebt *uint256.Int, depositedUsd decimal.Decimal) Plan {
	// 价格缺失要先于零债务判定：价格为 0 时债务折算恒为 0，
	// 后判会把缺价误报成"目标债务为 0"
	if !snap.Collateral.HasPrice() || !snap.Debt.HasPrice() {
		return degenerate(false, "缺少价格数据（抵押或债务资产价格为 0），无法推演借款容量")
	}
	if totalDebt.IsZero() {
		return degenerate(false, "目标债务为 0，无需拆分")
	}
	if ltv == 0 {
		return degenerate(false, "协议 LTV 为 0，容量无法增长，无法完成迭代建仓")
	}
	if swapRate.Sign() <= 0 {
		return degenerate(false, "swapRate 无效，无法推演 swap 所得抵押品")
	}

	effLtv := ltv.Ratio().Mul(consts.SafetyBufferBps.Ratio())
	debtPrice := decimal.NewFromBigInt(snap.Debt.PriceUsd.ToBig(), 0).Shift(-types.PriceDecimals)
	collPrice := decimal.NewFromBigInt(snap.Collateral.PriceUsd.ToBig(), 0).Shift(-types.PriceDecimals)

	remaining := decimal.NewFromBigInt(totalDebt.ToBig(), 0) // 债务最小单位

	// 每轮以"当前已存抵押价值 × 有效 LTV"为本块可借上限，借得的债务按同一
	// swapRate 换成抵押品计入下一轮，容量随迭代单调几何增长
	var sizes []*uint256.Int
	for len(sizes) < consts.MaxChunks && remaining.Sign() > 0 {
		capUsd := depositedUsd.Mul(effLtv)
		if capUsd.Sign() <= 0 {
			break
		}
		capUnits := capUsd.Div(debtPrice).Shift(int32(snap.Debt.Decimals))
		chunk := decimal.Min(capUnits, remaining).Floor()
		if chunk.Sign() <= 0 {
			break
		}

		size, overflow := uint256.FromBig(chunk.BigInt())
		if overflow {
			break
		}
		sizes = append(sizes, size)
		remaining = remaining.Sub(chunk)

		gainUnits := chunk.Mul(swapRate)
		depositedUsd = depositedUsd.Add(gainUnits.Shift(-int32(snap.Collateral.Decimals)).Mul(collPrice))
	}

	if len(sizes) == 0 {
		return degenerate(false, "首轮容量不足以借出任何债务（保证金过低），无法完成迭代建仓")
	}

	ratio := 1.0
	if len(sizes) >= 2 && !sizes[0].IsZero() {
		ratio = decimal.NewFromBigInt(sizes[1].ToBig(), 0).
			Div(decimal.NewFromBigInt(sizes[0].ToBig(), 0)).InexactFloat64()
	}

	explanation := fmt.Sprintf("容量驱动拆分：预计 %d 块，几何增长比约 %.4f；按单一 swapRate 快照推演，实际块数以逐块结算为准", len(sizes), ratio)
	if remaining.Sign() > 0 {
		explanation = fmt.Sprintf("容量在第 %d 块后耗尽，剩余 %s（债务最小单位）无法覆盖；%s", len(sizes), remaining.String(), explanation)
	}

	return Plan{
		NumChunks:     len(sizes),
		ChunkSize:     new(uint256.Int).Set(sizes[0]),
		ChunkSizes:    sizes,
		UseFlashLoan:  false,
		FlashLoanFees: nil,
		NeedsChunking: len(sizes) > 1,
		Explanation:   explanation,
	}
}
