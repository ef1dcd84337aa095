package handler

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/rest/httpx"

	"github.com/StefanIliev545/kapan-sub001/internal/cache"
	"github.com/StefanIliev545/kapan-sub001/internal/consts"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/chunker"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/flow"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/lender"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/quote"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/risk"
	"github.com/StefanIliev545/kapan-sub001/internal/svc"
	"github.com/StefanIliev545/kapan-sub001/internal/types"
	"github.com/StefanIliev545/kapan-sub001/pkg/logger"
	"github.com/StefanIliev545/kapan-sub001/pkg/utils"
)

// PlanHandler 计划端点：快照进，指令调用序列出。
// 外部协作方（报价、价格）的失败原样上抛，不在此层重试。
func PlanHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlanRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		resp, err := buildPlan(svcCtx, &req)
		if err != nil {
			logger.Errorf("plan 构建失败: %v", err)
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return uint256.NewInt(0), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s amount %q: %w", field, s, err)
	}
	return v, nil
}

func (a AssetReq) toAsset(svcCtx *svc.ServiceContext, field string) (types.AssetInfo, error) {
	addr, err := parseAddress(field, a.Address)
	if err != nil {
		return types.AssetInfo{}, err
	}
	price, err := parseAmount(field+".priceUsd", a.PriceUsd)
	if err != nil {
		return types.AssetInfo{}, err
	}
	if price.IsZero() {
		// 请求未携带价格时由缓存补全；缓存也没有就保持 0，走退化计划路径
		if cached, ok := svcCtx.PriceCache.GetPriceAt(addr, time.Now().Unix()); ok {
			price = cached
		}
	} else if price.IsUint64() {
		// 自带价格回灌缓存，供后续缺价请求复用
		svcCtx.PriceCache.Insert(map[common.Address]cache.TokenPricePoint{
			addr: {Timestamp: time.Now().Unix(), PriceUsd: price.Uint64()},
		})
	}
	return types.AssetInfo{Address: addr, Decimals: a.Decimals, PriceUsd: price}, nil
}

func parseMode(s string, leverage float64) flow.Mode {
	if leverage <= 1 {
		return flow.ModeDirect
	}
	switch s {
	case "direct":
		return flow.ModeDirect
	case "zap":
		return flow.ModeZap
	default:
		return flow.ModeFlashLoanLeverage
	}
}

func toVenueQuotes(reqs []QuoteReq) ([]quote.VenueQuote, error) {
	out := make([]quote.VenueQuote, 0, len(reqs))
	for _, q := range reqs {
		adapter, err := parseAddress("quote.adapter", q.Adapter)
		if err != nil {
			return nil, err
		}
		buy, err := parseAmount("quote.buyAmount", q.BuyAmount)
		if err != nil {
			return nil, err
		}
		out = append(out, quote.VenueQuote{
			Venue:     q.Venue,
			Adapter:   adapter,
			BuyAmount: buy,
			Calldata:  common.FromHex(q.Calldata),
		})
	}
	return out, nil
}

func formatHealthFactor(hf float64) string {
	if math.IsInf(hf, 1) {
		return "inf"
	}
	return decimal.NewFromFloat(hf).Round(4).String()
}

// impliedSwapRate 由价格推导 1 单位债务（最小单位）可换回的抵押品最小单位数
func impliedSwapRate(snap types.PositionSnapshot) decimal.Decimal {
	if !snap.Collateral.HasPrice() || !snap.Debt.HasPrice() {
		return decimal.Zero
	}
	debtP := decimal.NewFromBigInt(snap.Debt.PriceUsd.ToBig(), 0)
	collP := decimal.NewFromBigInt(snap.Collateral.PriceUsd.ToBig(), 0)
	return debtP.Div(collP).Shift(int32(snap.Collateral.Decimals) - int32(snap.Debt.Decimals))
}

// scaleAmount 按 part/total 比例折算 amount，向下取整
func scaleAmount(amount, part, total *uint256.Int) *uint256.Int {
	if total == nil || total.IsZero() {
		return uint256.NewInt(0)
	}
	out := new(uint256.Int).Mul(amount, part)
	return out.Div(out, total)
}

// splitMargin 按各块债务占比拆分保证金，向下取整，末块吸收余数。
// 恒有 sum(shares) == margin，保证多块计划拉取的保证金总量不超过用户自有量。
func splitMargin(margin *uint256.Int, sizes []*uint256.Int, total *uint256.Int) []*uint256.Int {
	shares := make([]*uint256.Int, len(sizes))
	consumed := uint256.NewInt(0)
	for i, s := range sizes {
		if i == len(sizes)-1 {
			shares[i] = new(uint256.Int).Sub(margin, consumed)
			break
		}
		shares[i] = scaleAmount(margin, s, total)
		consumed.Add(consumed, shares[i])
	}
	return shares
}

func buildPlan(svcCtx *svc.ServiceContext, req *PlanRequest) (*PlanResponse, error) {
	p, _, err := svcCtx.ProtocolStrategy(req.Protocol)
	if err != nil {
		return nil, err
	}
	user, err := parseAddress("user", req.User)
	if err != nil {
		return nil, err
	}
	collateral, err := req.Collateral.toAsset(svcCtx, "collateral")
	if err != nil {
		return nil, err
	}
	debt, err := req.Debt.toAsset(svcCtx, "debt")
	if err != nil {
		return nil, err
	}
	margin, err := parseAmount("margin", req.MarginAmount)
	if err != nil {
		return nil, err
	}

	slippage := types.Bps(req.SlippageBps)
	if slippage == 0 {
		slippage = types.Bps(svcCtx.Config.Defaults.SlippageBps)
	}
	numChunks := req.NumChunks
	if numChunks == 0 {
		numChunks = svcCtx.Config.Defaults.NumChunks
	}

	ltv := types.Bps(req.LtvBps)
	maxLev := risk.MaxLeverageWithSlippage(ltv, slippage)
	leverage := req.Leverage
	if leverage > maxLev {
		leverage = maxLev
	}

	snap := types.PositionSnapshot{
		User:                    user,
		Protocol:                p,
		Collateral:              collateral,
		Debt:                    debt,
		MarginAmount:            margin,
		Leverage:                leverage,
		SlippageBps:             slippage,
		ProtocolLtvBps:          ltv,
		LiquidationThresholdBps: types.Bps(req.LiquidationThresholdBps),
	}

	mode := parseMode(req.Mode, leverage)
	flAmount := risk.FlashLoanAmount(snap)
	if mode == flow.ModeZap {
		flAmount = risk.FlashLoanAmountZap(snap)
	}

	// zap 的保证金按债务计价，指标与容量推演都要走 zap 口径
	computeMetrics := func(minOut *uint256.Int) risk.Metrics {
		if mode == flow.ModeZap {
			return risk.ComputeZap(snap, minOut)
		}
		return risk.Compute(snap, minOut)
	}

	venueQuotes, err := toVenueQuotes(req.Quotes)
	if err != nil {
		return nil, err
	}
	best, haveQuote := quote.Best(venueQuotes)

	resp := &PlanResponse{MaxLeverage: maxLev}

	// 直存模式不需要报价与闪电贷
	if mode == flow.ModeDirect {
		ch, err := svcCtx.Compiler.BuildChunk(snap, quote.VenueQuote{}, nil, flow.ModeDirect)
		if err != nil {
			return nil, err
		}
		calls, err := svcCtx.Compiler.BundleCalls(snap, ch, flow.ModeDirect, false, nil)
		if err != nil {
			return nil, err
		}
		m := risk.Compute(snap, nil)
		fillMetrics(resp, m)
		resp.Ready = len(ch.PreInstructions) > 0
		resp.NumChunks = 1
		resp.ChunkSizes = []string{"0"}
		resp.Explanation = "纯保证金直存，无需拆分"
		resp.Chunks = []ChunkResp{toChunkResp(ch, calls)}
		return resp, nil
	}

	if !haveQuote || flAmount.IsZero() {
		// NotReady：调用方应展示"尚未就绪"，而不是失败
		m := computeMetrics(nil)
		fillMetrics(resp, m)
		resp.Ready = false
		resp.NumChunks = 1
		resp.ChunkSizes = []string{"0"}
		resp.Explanation = "缺少可用报价或目标债务为 0，计划尚未就绪"
		resp.Chunks = []ChunkResp{}
		return resp, nil
	}

	selected, haveLender := svcCtx.Lenders.Select(svcCtx.Config.ChainID)

	var plan chunker.Plan
	switch {
	case haveLender:
		plan = chunker.SplitFlashLoan(flAmount, numChunks, selected.FeeBps)
	case mode == flow.ModeZap:
		plan = chunker.PlanCapacityZap(snap, ltv, impliedSwapRate(snap))
	default:
		plan = chunker.PlanCapacity(snap, ltv, impliedSwapRate(snap))
	}

	minBuyTotal := quote.MinBuyAmount(best.BuyAmount, slippage)
	m := computeMetrics(minBuyTotal)
	fillMetrics(resp, m)
	resp.Ready = true
	resp.UseFlashLoan = plan.UseFlashLoan
	resp.NumChunks = plan.NumChunks
	resp.Explanation = plan.Explanation
	resp.ChunkSizes = make([]string, len(plan.ChunkSizes))
	for i, s := range plan.ChunkSizes {
		resp.ChunkSizes[i] = s.Dec()
	}

	// 保证金按块占比拆分：多块计划每块只动自己的份额，总量恒等于用户自有量
	marginShares := splitMargin(margin, plan.ChunkSizes, flAmount)

	// 每块独立编译；编译是纯函数，可安全并行
	type chunkJob struct {
		index  int
		size   *uint256.Int
		margin *uint256.Int
	}
	jobs := make([]chunkJob, len(plan.ChunkSizes))
	for i, s := range plan.ChunkSizes {
		jobs[i] = chunkJob{index: i, size: s, margin: marginShares[i]}
	}

	type chunkOut struct {
		resp ChunkResp
		err  error
	}
	outs := utils.ParallelMap(jobs, consts.CpuCount, func(job chunkJob) chunkOut {
		chunkQuote := best
		chunkQuote.BuyAmount = scaleAmount(best.BuyAmount, job.size, flAmount)

		var (
			ch    flow.Chunk
			calls []flow.Call
			err   error
		)
		if plan.UseFlashLoan {
			chunkSnap := snap
			chunkSnap.MarginAmount = job.margin
			fl := &lender.FlashLoanConfig{
				Lender: selected.Address,
				Token:  snap.Debt.Address,
				Amount: job.size,
				FeeBps: selected.FeeBps,
			}
			ch, err = svcCtx.Compiler.BuildChunk(chunkSnap, chunkQuote, fl, mode)
			if err == nil {
				calls, err = svcCtx.Compiler.BundleCalls(chunkSnap, ch, mode, true, nil)
			}
		} else {
			// 迭代模式的保证金整体走首块：直存（或 zap 并入首块卖出额），
			// 后续块的资金全部来自上一块借出的债务
			chunkSnap := snap
			if job.index > 0 || mode == flow.ModeZap {
				chunkSnap.MarginAmount = uint256.NewInt(0)
			}

			sell := job.size
			if mode == flow.ModeZap && job.index == 0 {
				sell = new(uint256.Int).Add(margin, job.size)
			}

			var nextBorrow *uint256.Int
			if job.index+1 < len(plan.ChunkSizes) {
				nextBorrow = plan.ChunkSizes[job.index+1]
			}
			ch, err = svcCtx.Compiler.BuildIterativeChunk(chunkSnap, chunkQuote, sell, nextBorrow)
			if err == nil {
				var seed *uint256.Int
				if job.index == 0 {
					seed = plan.ChunkSizes[0]
				}
				calls, err = svcCtx.Compiler.BundleCalls(chunkSnap, ch, mode, false, seed)
			}
		}
		if err != nil {
			return chunkOut{err: err}
		}
		return chunkOut{resp: toChunkResp(ch, calls)}
	})

	resp.Chunks = make([]ChunkResp, 0, len(outs))
	for _, o := range outs {
		if o.err != nil {
			return nil, o.err
		}
		resp.Chunks = append(resp.Chunks, o.resp)
	}
	if !plan.NeedsChunking && plan.ChunkSize.IsZero() && !plan.UseFlashLoan {
		// MissingPriceData / CapacityExhausted：退化计划，展示禁用态
		resp.Ready = false
		resp.Chunks = resp.Chunks[:0]
	}
	return resp, nil
}

func fillMetrics(resp *PlanResponse, m risk.Metrics) {
	resp.HealthFactor = formatHealthFactor(m.HealthFactor)
	resp.Ltv = m.Ltv
	if m.LiquidationPrice != nil {
		resp.LiquidationPrice = m.LiquidationPrice.Round(8).String()
	}
}

func toChunkResp(ch flow.Chunk, calls []flow.Call) ChunkResp {
	out := ChunkResp{
		SellAmount:   ch.SellAmount.Dec(),
		MinBuyAmount: ch.MinBuyAmount.Dec(),
		Calls:        make([]CallResp, 0, len(calls)),
	}
	for _, c := range calls {
		out.Calls = append(out.Calls, CallResp{To: c.To.Hex(), Data: hexutil.Encode(c.Data)})
	}
	return out
}
