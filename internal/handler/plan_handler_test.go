package handler

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanIliev545/kapan-sub001/internal/config"
	"github.com/StefanIliev545/kapan-sub001/internal/consts"
	"github.com/StefanIliev545/kapan-sub001/internal/svc"
)

func testServiceContext(t *testing.T) *svc.ServiceContext {
	t.Helper()
	cfg := config.PlannerConfig{
		ChainID: consts.ChainIDArbitrum,
		Router:  "0x594cE4B82A81930cC637f1A59afdFb0D70054232",
		Protocols: []config.ProtocolConfig{{
			Name:                    "aave_v3",
			Market:                  consts.AaveV3PoolStr,
			LtvBps:                  8000,
			LiquidationThresholdBps: 8250,
		}},
		Lenders:  []config.LenderConfig{{Address: consts.BalancerVaultStr, FeeBps: 0}},
		Defaults: config.PlannerDefaults{SlippageBps: 50, NumChunks: 1},
	}
	ctx, err := svc.NewServiceContext(cfg)
	require.NoError(t, err)
	return ctx
}

// 1 WETH 保证金 @ $2000，USDC 债务，5 倍闪电贷计划
func flashPlanRequest(numChunks int) PlanRequest {
	return PlanRequest{
		Protocol: "aave_v3",
		User:     "0x8888888888888888888888888888888888888888",
		Collateral: AssetReq{
			Address:  consts.WETHStr,
			Decimals: 18,
			PriceUsd: "200000000000",
		},
		Debt: AssetReq{
			Address:  consts.USDCStr,
			Decimals: 6,
			PriceUsd: "100000000",
		},
		MarginAmount:            "1000000000000000000",
		Leverage:                5,
		SlippageBps:             50,
		NumChunks:               numChunks,
		LtvBps:                  8000,
		LiquidationThresholdBps: 8250,
		Quotes: []QuoteReq{{
			Venue:     "odos",
			Adapter:   "0xAAAAAAAAAAAAaAaAAAaAaaaAaAAAAAaaaaAAAAAA",
			BuyAmount: "4000000000000000000",
			Calldata:  "0xcafe",
		}},
	}
}

// approve calldata = 4 字节选择器 + (address, uint256)
func approveAmountOf(t *testing.T, call CallResp) *uint256.Int {
	t.Helper()
	data := common.FromHex(call.Data)
	require.Len(t, data, 68)
	return new(uint256.Int).SetBytes(data[36:68])
}

func TestSplitMargin(t *testing.T) {
	sizes := []*uint256.Int{uint256.NewInt(1), uint256.NewInt(1), uint256.NewInt(1)}
	shares := splitMargin(uint256.NewInt(1_000_000_001), sizes, uint256.NewInt(3))

	require.Len(t, shares, 3)
	assert.Equal(t, uint256.NewInt(333_333_333), shares[0])
	assert.Equal(t, uint256.NewInt(333_333_333), shares[1])
	assert.Equal(t, uint256.NewInt(333_333_335), shares[2], "末块吸收余数")

	sum := uint256.NewInt(0)
	for _, s := range shares {
		sum.Add(sum, s)
	}
	assert.Equal(t, uint256.NewInt(1_000_000_001), sum)
}

// 多块闪电贷计划各块只动自己的保证金份额，各块授权额之和恒等于用户自有保证金
func TestBuildPlan_SplitsMarginAcrossChunks(t *testing.T) {
	svcCtx := testServiceContext(t)
	req := flashPlanRequest(2)

	resp, err := buildPlan(svcCtx, &req)
	require.NoError(t, err)
	require.True(t, resp.Ready)
	require.Equal(t, 2, resp.NumChunks)
	require.Len(t, resp.Chunks, 2)

	margin := uint256.MustFromDecimal(req.MarginAmount)
	pulled := uint256.NewInt(0)
	for i, ch := range resp.Chunks {
		require.NotEmpty(t, ch.Calls, "chunk %d", i)
		// 首个调用是保证金授权，发生在抵押资产合约上
		assert.Equal(t, consts.WETH.Hex(), ch.Calls[0].To, "chunk %d", i)
		pulled.Add(pulled, approveAmountOf(t, ch.Calls[0]))
	}
	assert.Equal(t, margin, pulled, "两块合计不得超过用户自有保证金")

	// 均分债务时保证金份额也均分
	a := approveAmountOf(t, resp.Chunks[0].Calls[0])
	b := approveAmountOf(t, resp.Chunks[1].Calls[0])
	assert.Equal(t, a, b)
}

// zap 指标必须按债务计价的保证金折算，不能沿用标准模式口径
func TestBuildPlan_ZapMetrics(t *testing.T) {
	svcCtx := testServiceContext(t)
	req := flashPlanRequest(1)
	req.Mode = "zap"
	req.Leverage = 3
	req.MarginAmount = "1000000000" // 1000 USDC（债务最小单位）
	req.Quotes[0].BuyAmount = "1500000000000000000"

	resp, err := buildPlan(svcCtx, &req)
	require.NoError(t, err)
	require.True(t, resp.Ready)

	// 借 $2000，到手 1.4925 WETH ≈ $2985：HF = 2985*0.825/2000 = 1.2313
	assert.Equal(t, "1.2313", resp.HealthFactor)
	assert.InDelta(t, 0.6700, resp.Ltv, 1e-3)

	// 卖出额 = 保证金 + 闪电贷本金 = 1000 + 2000 USDC
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "3000000000", resp.Chunks[0].SellAmount)
	// zap 授权的是债务资产
	assert.Equal(t, consts.USDC.Hex(), resp.Chunks[0].Calls[0].To)
}

// 自带价格的请求回灌缓存，后续缺价请求据此补全
func TestToAsset_CacheBackfill(t *testing.T) {
	svcCtx := testServiceContext(t)

	priced := AssetReq{Address: consts.WETHStr, Decimals: 18, PriceUsd: "200000000000"}
	_, err := priced.toAsset(svcCtx, "collateral")
	require.NoError(t, err)

	unpriced := AssetReq{Address: consts.WETHStr, Decimals: 18}
	asset, err := unpriced.toAsset(svcCtx, "collateral")
	require.NoError(t, err)
	require.True(t, asset.HasPrice(), "缺价请求应由缓存补全")
	assert.Equal(t, uint256.NewInt(200000000000), asset.PriceUsd)
}
