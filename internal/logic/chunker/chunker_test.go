package chunker

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanIliev545/kapan-sub001/internal/consts"
	"github.com/StefanIliev545/kapan-sub001/internal/types"
)

func TestSplitFlashLoan_RemainderGoesToLastChunk(t *testing.T) {
	p := SplitFlashLoan(uint256.NewInt(1_000_000), 3, 0)

	assert.Equal(t, 3, p.NumChunks)
	assert.True(t, p.UseFlashLoan)
	assert.True(t, p.NeedsChunking)
	require.Len(t, p.ChunkSizes, 3)
	assert.Equal(t, uint256.NewInt(333333), p.ChunkSizes[0])
	assert.Equal(t, uint256.NewInt(333333), p.ChunkSizes[1])
	assert.Equal(t, uint256.NewInt(333334), p.ChunkSizes[2], "末块吸收整数余数")
}

// 任意 (total, n) 组合都必须满足 sum(chunkSizes) == total
func TestSplitFlashLoan_SumProperty(t *testing.T) {
	totals := []uint64{1, 7, 100, 999_999, 1_000_000, 123_456_789}
	for _, total := range totals {
		for n := 1; n <= 10; n++ {
			p := SplitFlashLoan(uint256.NewInt(total), n, 0)
			sum := uint256.NewInt(0)
			for _, s := range p.ChunkSizes {
				sum.Add(sum, s)
			}
			assert.Equal(t, uint256.NewInt(total), sum, "total=%d n=%d", total, n)
		}
	}
}

func TestSplitFlashLoan_PerChunkFees(t *testing.T) {
	// 每块是一笔独立闪电贷，费用按自身大小计：5_000_000 * 9 / 10000 = 4500
	p := SplitFlashLoan(uint256.NewInt(10_000_000), 2, 9)
	require.Len(t, p.FlashLoanFees, 2)
	assert.Equal(t, uint256.NewInt(4500), p.FlashLoanFees[0])
	assert.Equal(t, uint256.NewInt(4500), p.FlashLoanFees[1])
}

func TestSplitFlashLoan_ClampsChunkCount(t *testing.T) {
	p := SplitFlashLoan(uint256.NewInt(1000), 0, 0)
	assert.Equal(t, 1, p.NumChunks)
	assert.False(t, p.NeedsChunking)

	p = SplitFlashLoan(uint256.NewInt(1_000_000), 150, 0)
	assert.Equal(t, consts.MaxChunks, p.NumChunks)
}

func TestSplitFlashLoan_ZeroTotal(t *testing.T) {
	p := SplitFlashLoan(uint256.NewInt(0), 5, 0)
	assert.Equal(t, 1, p.NumChunks)
	assert.False(t, p.NeedsChunking)
	assert.True(t, p.ChunkSize.IsZero())
	assert.NotEmpty(t, p.Explanation)
}

func capacitySnapshot(leverage float64) types.PositionSnapshot {
	return types.PositionSnapshot{
		User:     common.HexToAddress("0x9999999999999999999999999999999999999999"),
		Protocol: types.ProtocolAaveV3,
		Collateral: types.AssetInfo{
			Address:  common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
			Decimals: 18,
			PriceUsd: uint256.NewInt(2000_0000_0000),
		},
		Debt: types.AssetInfo{
			Address:  common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
			Decimals: 6,
			PriceUsd: uint256.NewInt(1_0000_0000),
		},
		MarginAmount:            uint256.NewInt(1e18), // 1 WETH
		Leverage:                leverage,
		SlippageBps:             50,
		ProtocolLtvBps:          8000,
		LiquidationThresholdBps: 8250,
	}
}

// 1 债务最小单位（$1e-6 USDC）可换 5e8 wei WETH（$2000/WETH）
var capacitySwapRate = decimal.NewFromInt(500_000_000)

func TestPlanCapacity_GeometricGrowth(t *testing.T) {
	// 保证金 $2000，5 倍杠杆，目标债务 $8000 = 8e9 最小单位。
	// 有效 LTV = 0.8 * 0.9 = 0.72：
	// 第 1 块 2000*0.72 = $1440，换回抵押后第 2 块 3440*0.72 = $2476.8，
	// 第 3 块容量超过剩余，吸收余下 $4083.2
	p := PlanCapacity(capacitySnapshot(5), 8000, capacitySwapRate)

	assert.Equal(t, 3, p.NumChunks)
	assert.False(t, p.UseFlashLoan)
	assert.True(t, p.NeedsChunking)
	require.Len(t, p.ChunkSizes, 3)
	assert.Equal(t, uint256.NewInt(1_440_000_000), p.ChunkSizes[0])
	assert.Equal(t, uint256.NewInt(2_476_800_000), p.ChunkSizes[1])
	assert.Equal(t, uint256.NewInt(4_083_200_000), p.ChunkSizes[2])

	sum := uint256.NewInt(0)
	for _, s := range p.ChunkSizes {
		sum.Add(sum, s)
	}
	assert.Equal(t, uint256.NewInt(8_000_000_000), sum)

	// 几何增长比 2476.8/1440 = 1.72
	assert.Contains(t, p.Explanation, "1.72")
	assert.Contains(t, p.Explanation, "3 块")
}

// zap 口径：目标债务与首轮已存价值都按债务资产计价
func TestPlanCapacityZap_DebtDenominatedMargin(t *testing.T) {
	// 1000 USDC 保证金，5 倍：目标债务 $4000 = 4e9 最小单位，
	// 首轮已存价值 $1000（保证金换成抵押品后入仓）
	snap := capacitySnapshot(5)
	snap.MarginAmount = uint256.NewInt(1_000_000_000)

	p := PlanCapacityZap(snap, 8000, capacitySwapRate)

	assert.Equal(t, 3, p.NumChunks)
	require.Len(t, p.ChunkSizes, 3)
	assert.Equal(t, uint256.NewInt(720_000_000), p.ChunkSizes[0])
	assert.Equal(t, uint256.NewInt(1_238_400_000), p.ChunkSizes[1])
	assert.Equal(t, uint256.NewInt(2_041_600_000), p.ChunkSizes[2])

	sum := uint256.NewInt(0)
	for _, s := range p.ChunkSizes {
		sum.Add(sum, s)
	}
	assert.Equal(t, uint256.NewInt(4_000_000_000), sum)
}

func TestPlanCapacity_CapacityExhausted(t *testing.T) {
	// swapRate 接近 0 时容量不增长，每块恒为 $1440；100 倍杠杆的
	// 目标债务 $198000 在 100 块上限内无法覆盖
	p := PlanCapacity(capacitySnapshot(100), 8000, decimal.NewFromInt(1))

	assert.Equal(t, consts.MaxChunks, p.NumChunks)
	assert.Contains(t, p.Explanation, "耗尽")
}

func TestPlanCapacity_Degenerate(t *testing.T) {
	// 杠杆 1：目标债务为 0
	p := PlanCapacity(capacitySnapshot(1), 8000, capacitySwapRate)
	assert.Equal(t, 1, p.NumChunks)
	assert.False(t, p.NeedsChunking)
	assert.NotEmpty(t, p.Explanation)

	// 价格缺失必须报缺价诊断，不能被零债务判定抢先误报
	noPrice := capacitySnapshot(5)
	noPrice.Debt.PriceUsd = uint256.NewInt(0)
	p = PlanCapacity(noPrice, 8000, capacitySwapRate)
	assert.False(t, p.NeedsChunking)
	assert.Contains(t, p.Explanation, "价格")

	noCollPrice := capacitySnapshot(5)
	noCollPrice.Collateral.PriceUsd = nil
	p = PlanCapacity(noCollPrice, 8000, capacitySwapRate)
	assert.False(t, p.NeedsChunking)
	assert.Contains(t, p.Explanation, "价格")

	// LTV 为 0：容量永远无法增长
	p = PlanCapacity(capacitySnapshot(5), 0, capacitySwapRate)
	assert.False(t, p.NeedsChunking)
	assert.Contains(t, p.Explanation, "LTV")

	// swapRate 非法
	p = PlanCapacity(capacitySnapshot(5), 8000, decimal.Zero)
	assert.False(t, p.NeedsChunking)
}
