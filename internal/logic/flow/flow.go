package flow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/StefanIliev545/kapan-sub001/internal/logic/instruction"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/lender"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/protocol"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/quote"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/tape"
	"github.com/StefanIliev545/kapan-sub001/internal/types"
)

// Mode 建仓流的编译模式
type Mode uint8

const (
	// ModeDirect 纯保证金直存，杠杆 ≤ 1，无 swap
	ModeDirect Mode = iota + 1
	// ModeFlashLoanLeverage 闪电贷单次建仓
	ModeFlashLoanLeverage
	// ModeZap 入金资产即债务资产：保证金与借款合并为一次 swap 输入
	ModeZap
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeFlashLoanLeverage:
		return "flash_loan"
	case ModeZap:
		return "zap"
	default:
		return "invalid"
	}
}

// Chunk 一次可独立结算的执行切片
type Chunk struct {
	SellAmount       *uint256.Int // 本块卖出的债务数量（含 zap 模式的保证金部分）
	MinBuyAmount     *uint256.Int // 滑点折算后的最低到手抵押品
	PreInstructions  []instruction.Instruction
	PostInstructions []instruction.Instruction
	// FlashLoanRepaymentIndex 归还额所在的磁带索引；非闪电贷块为 nil
	FlashLoanRepaymentIndex *tape.Index
}

// Compiler 持有一次编译所需的静态环境；自身不含任何可变状态，
// 相同快照与报价下两次编译产出字节级一致的指令表。
type Compiler struct {
	Router common.Address // 指令的结算面（订单路由合约）
}

func New(router common.Address) Compiler {
	return Compiler{Router: router}
}

// notReady 判定 NotReady 前置条件：闪电贷额为 0、报价缺失、适配器未知。
// 这些情况返回空指令表（"尚未就绪"信号），不是错误。
func notReady(q quote.VenueQuote, fl *lender.FlashLoanConfig) bool {
	return fl == nil || fl.Amount == nil || fl.Amount.IsZero() || !q.Ready()
}

// Compile 编译一个 chunk 的完整有序指令表。
// 前置条件不满足时返回空表；协议未注册或引用非法属于构建期错误。
func (c Compiler) Compile(snap types.PositionSnapshot, q quote.VenueQuote, fl *lender.FlashLoanConfig, mode Mode) ([]instruction.Instruction, error) {
	instrs, _, err := c.compile(snap, q, fl, mode)
	return instrs, err
}

func (c Compiler) compile(snap types.PositionSnapshot, q quote.VenueQuote, fl *lender.FlashLoanConfig, mode Mode) ([]instruction.Instruction, *tape.Index, error) {
	strat, err := protocol.Lookup(snap.Protocol)
	if err != nil {
		return nil, nil, err
	}

	var (
		instrs   []instruction.Instruction
		repayIdx *tape.Index
	)
	switch mode {
	case ModeDirect:
		instrs, err = compileDirect(snap, strat)
	case ModeFlashLoanLeverage:
		instrs, repayIdx, err = c.compileFlashLoan(snap, q, fl, strat)
	case ModeZap:
		instrs, repayIdx, err = c.compileZap(snap, q, fl, strat)
	default:
		return nil, nil, fmt.Errorf("flow: unknown mode %d", mode)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := Validate(instrs); err != nil {
		return nil, nil, err
	}
	return instrs, repayIdx, nil
}

// Direct：PullToken(保证金) → Approve → DepositCollateral，无 swap，不预留索引 0
func compileDirect(snap types.PositionSnapshot, strat protocol.Strategy) ([]instruction.Instruction, error) {
	if snap.Margin().IsZero() {
		return []instruction.Instruction{}, nil
	}
	t := tape.New()
	pull := instruction.PullToken(snap.Margin(), snap.Collateral.Address, snap.User)
	idx := t.Append(tape.Output{Kind: tape.KindTokenAmount, Token: snap.Collateral.Address})

	approve := instruction.Approve(idx, strat.Spender())
	deposit := strat.DepositCollateral(idx, snap.Collateral.Address, snap.User)
	t.Append(tape.Output{Kind: tape.KindReceipt, Token: snap.Collateral.Address})

	return []instruction.Instruction{pull, approve, deposit}, nil
}

// 闪电贷单发：
//
//	tape[0] swap 成交额 → tape[1] 保证金 → tape[2] 两者之和（总抵押）
//	→ Approve(2) → DepositCollateral(2) → tape[3] 回执
//	→ Borrow(归还额) → tape[4]；归还额由调用方 PushToken 给出借方
//
// 多块计划里保证金按块占比拆分，份额为 0 的块跳过 PullToken/Add，
// 直接以 swap 成交额（tape[0]）为总抵押。
func (c Compiler) compileFlashLoan(snap types.PositionSnapshot, q quote.VenueQuote, fl *lender.FlashLoanConfig, strat protocol.Strategy) ([]instruction.Instruction, *tape.Index, error) {
	if notReady(q, fl) {
		return []instruction.Instruction{}, nil, nil
	}

	minBuy := quote.MinBuyAmount(q.BuyAmount, snap.SlippageBps)

	t := tape.New()
	idx0, err := t.ReserveExternal(snap.Collateral.Address)
	if err != nil {
		return nil, nil, err
	}
	instrs := []instruction.Instruction{instruction.ToOutput(minBuy, snap.Collateral.Address)}

	collIdx := idx0
	if !snap.Margin().IsZero() {
		pull := instruction.PullToken(snap.Margin(), snap.Collateral.Address, snap.User)
		idx1 := t.Append(tape.Output{Kind: tape.KindTokenAmount, Token: snap.Collateral.Address})

		sum := instruction.Add(idx0, idx1)
		collIdx = t.Append(tape.Output{Kind: tape.KindTokenAmount, Token: snap.Collateral.Address})
		instrs = append(instrs, pull, sum)
	}

	approve := instruction.Approve(collIdx, strat.Spender())
	deposit := strat.DepositCollateral(collIdx, snap.Collateral.Address, snap.User)
	t.Append(tape.Output{Kind: tape.KindReceipt, Token: snap.Collateral.Address})

	borrow := strat.Borrow(fl.RepaymentAmount(), snap.Debt.Address, c.Router, snap.User)
	idxRepay := t.Append(tape.Output{Kind: tape.KindTokenAmount, Token: snap.Debt.Address})

	instrs = append(instrs, approve, deposit, borrow)
	return instrs, &idxRepay, nil
}

// Zap：保证金即债务资产，与借款合并成一次 swap 输入，
// 成交额整体作为 tape[0]，之后与闪电贷模式相同的存款/借款尾部。
// 指令表不触碰保证金本身（已并入卖出额），保证金为 0 的块同样合法。
func (c Compiler) compileZap(snap types.PositionSnapshot, q quote.VenueQuote, fl *lender.FlashLoanConfig, strat protocol.Strategy) ([]instruction.Instruction, *tape.Index, error) {
	if notReady(q, fl) {
		return []instruction.Instruction{}, nil, nil
	}

	minBuy := quote.MinBuyAmount(q.BuyAmount, snap.SlippageBps)

	t := tape.New()
	idx0, err := t.ReserveExternal(snap.Collateral.Address)
	if err != nil {
		return nil, nil, err
	}
	toOut := instruction.ToOutput(minBuy, snap.Collateral.Address)

	approve := instruction.Approve(idx0, strat.Spender())
	deposit := strat.DepositCollateral(idx0, snap.Collateral.Address, snap.User)
	t.Append(tape.Output{Kind: tape.KindReceipt, Token: snap.Collateral.Address})

	borrow := strat.Borrow(fl.RepaymentAmount(), snap.Debt.Address, c.Router, snap.User)
	idxRepay := t.Append(tape.Output{Kind: tape.KindTokenAmount, Token: snap.Debt.Address})

	return []instruction.Instruction{toOut, approve, deposit, borrow}, &idxRepay, nil
}

// BuildChunk 编译并装配一个完整的 Chunk（含归还用的后置指令）
func (c Compiler) BuildChunk(snap types.PositionSnapshot, q quote.VenueQuote, fl *lender.FlashLoanConfig, mode Mode) (Chunk, error) {
	instrs, repayIdx, err := c.compile(snap, q, fl, mode)
	if err != nil {
		return Chunk{}, err
	}

	ch := Chunk{
		SellAmount:      uint256.NewInt(0),
		MinBuyAmount:    uint256.NewInt(0),
		PreInstructions: instrs,
	}
	if len(instrs) == 0 {
		return ch, nil
	}

	switch mode {
	case ModeFlashLoanLeverage:
		ch.SellAmount = new(uint256.Int).Set(fl.Amount)
	case ModeZap:
		ch.SellAmount = new(uint256.Int).Add(snap.Margin(), fl.Amount)
	}
	if mode != ModeDirect {
		ch.MinBuyAmount = quote.MinBuyAmount(q.BuyAmount, snap.SlippageBps)
	}

	if repayIdx != nil {
		ch.FlashLoanRepaymentIndex = repayIdx
		ch.PostInstructions = []instruction.Instruction{instruction.PushToken(*repayIdx, fl.Lender)}
	}
	return ch, nil
}

// BuildIterativeChunk 装配迭代（非闪电贷）模式下的单个切片。
// 本块的卖出额来自上一块（或种子借款）已借到的债务；swap 成交额作为 tape[0]
// 存入协议，随后借出 nextBorrow 为下一块注资；末块 nextBorrow 传 nil。
func (c Compiler) BuildIterativeChunk(snap types.PositionSnapshot, q quote.VenueQuote, sellAmount, nextBorrow *uint256.Int) (Chunk, error) {
	if sellAmount == nil || sellAmount.IsZero() || !q.Ready() {
		return Chunk{SellAmount: uint256.NewInt(0), MinBuyAmount: uint256.NewInt(0)}, nil
	}
	strat, err := protocol.Lookup(snap.Protocol)
	if err != nil {
		return Chunk{}, err
	}

	minBuy := quote.MinBuyAmount(q.BuyAmount, snap.SlippageBps)

	t := tape.New()
	idx0, err := t.ReserveExternal(snap.Collateral.Address)
	if err != nil {
		return Chunk{}, err
	}
	instrs := []instruction.Instruction{
		instruction.ToOutput(minBuy, snap.Collateral.Address),
		instruction.Approve(idx0, strat.Spender()),
		strat.DepositCollateral(idx0, snap.Collateral.Address, snap.User),
	}
	t.Append(tape.Output{Kind: tape.KindReceipt, Token: snap.Collateral.Address})

	if nextBorrow != nil && !nextBorrow.IsZero() {
		instrs = append(instrs, strat.Borrow(nextBorrow, snap.Debt.Address, c.Router, snap.User))
		t.Append(tape.Output{Kind: tape.KindTokenAmount, Token: snap.Debt.Address})
	}
	if err := Validate(instrs); err != nil {
		return Chunk{}, err
	}

	return Chunk{
		SellAmount:      new(uint256.Int).Set(sellAmount),
		MinBuyAmount:    minBuy,
		PreInstructions: instrs,
	}, nil
}

// Validate 构建期防御校验：重放磁带，任何指令只能引用严格早于它产出的输出。
// 正确的编译器不会触发；错误信息指明违规指令的位置。
func Validate(instrs []instruction.Instruction) error {
	produced := 0
	for i, ins := range instrs {
		d, err := instruction.Decode(ins.Payload)
		if err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		for _, ref := range d.TapeRefs() {
			if int(ref) >= produced {
				return fmt.Errorf("instruction %d (%s): %w: index %d, outputs so far %d",
					i, d.Op, tape.ErrDanglingRef, ref, produced)
			}
		}
		if d.Op.ProducesOutput() {
			produced++
		}
	}
	return nil
}
