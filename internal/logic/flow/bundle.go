package flow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/StefanIliev545/kapan-sub001/internal/logic/instruction"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/protocol"
	"github.com/StefanIliev545/kapan-sub001/internal/types"
)

// Call 交给签名/提交协作方的 (目标合约, calldata) 对
type Call struct {
	To   common.Address
	Data []byte
}

// erc20ApproveSelector approve(address,uint256)
var erc20ApproveSelector = [4]byte{0x09, 0x5e, 0xa7, 0xb3}

var (
	approveArgs = abi.Arguments{
		{Type: mustType("address", nil)},
		{Type: mustType("uint256", nil)},
	}
	// 订单提交 calldata：(uint8 surface, bytes payload)[]，布局冻结
	submitArgs = abi.Arguments{
		{Type: mustType("tuple[]", []abi.ArgumentMarshaling{
			{Name: "surface", Type: "uint8"},
			{Name: "payload", Type: "bytes"},
		})},
	}
)

func mustType(name string, components []abi.ArgumentMarshaling) abi.Type {
	t, err := abi.NewType(name, "", components)
	if err != nil {
		panic(fmt.Errorf("abi type %q: %v", name, err))
	}
	return t
}

type packedInstruction struct {
	Surface uint8
	Payload []byte
}

// EncodeCalldata 把一个 chunk 的全部指令（前置 + 后置）编码为订单提交 calldata
func EncodeCalldata(instrs []instruction.Instruction) ([]byte, error) {
	packed := make([]packedInstruction, 0, len(instrs))
	for _, ins := range instrs {
		packed = append(packed, packedInstruction{Surface: uint8(ins.Surface), Payload: ins.Payload})
	}
	data, err := submitArgs.Pack(packed)
	if err != nil {
		return nil, fmt.Errorf("encode submit calldata: %w", err)
	}
	return data, nil
}

func erc20Approve(spender common.Address, amount *uint256.Int) []byte {
	packed, err := approveArgs.Pack(spender, amount.ToBig())
	if err != nil {
		panic(fmt.Errorf("pack erc20 approve: %v", err))
	}
	return append(erc20ApproveSelector[:], packed...)
}

// BundleCalls 按冻结顺序产出一个 chunk 的调用序列：
//
//	[授权] → [deposit-router，闪电贷模式跳过] → [种子借款，闪电贷模式跳过] → [订单提交]
//
// useFlashLoan 表示本块由闪电贷注资；seedBorrow 为迭代模式首块的种子借款额，
// 闪电贷模式或非首块传 nil。
func (c Compiler) BundleCalls(snap types.PositionSnapshot, ch Chunk, mode Mode, useFlashLoan bool, seedBorrow *uint256.Int) ([]Call, error) {
	if len(ch.PreInstructions) == 0 {
		return nil, nil
	}
	strat, err := protocol.Lookup(snap.Protocol)
	if err != nil {
		return nil, err
	}

	// 授权对象：zap 模式卖的是债务资产，其余模式是抵押资产。
	// 本块没有保证金流动（多块计划的无份额块）时无需授权。
	approveToken := snap.Collateral.Address
	approveAmount := snap.Margin()
	if mode == ModeZap {
		approveToken = snap.Debt.Address
		approveAmount = ch.SellAmount
	}

	var calls []Call
	if approveAmount != nil && !approveAmount.IsZero() {
		calls = append(calls, Call{To: approveToken, Data: erc20Approve(c.Router, approveAmount)})
	}

	if !useFlashLoan && mode != ModeDirect {
		// 迭代模式首块：先把保证金存进协议，再做种子借款，为首块腾出卖出额。
		// zap 的保证金是债务资产且已并入卖出额，不走抵押直存。
		if mode != ModeZap && !snap.Margin().IsZero() {
			deposit := strat.DepositCollateralAmount(snap.Margin(), snap.Collateral.Address, snap.User)
			calls = append(calls, Call{To: c.Router, Data: deposit.Payload})
		}

		if seedBorrow != nil && !seedBorrow.IsZero() {
			borrow := strat.Borrow(seedBorrow, snap.Debt.Address, c.Router, snap.User)
			calls = append(calls, Call{To: c.Router, Data: borrow.Payload})
		}
	}

	all := make([]instruction.Instruction, 0, len(ch.PreInstructions)+len(ch.PostInstructions))
	all = append(all, ch.PreInstructions...)
	all = append(all, ch.PostInstructions...)
	submit, err := EncodeCalldata(all)
	if err != nil {
		return nil, err
	}
	calls = append(calls, Call{To: c.Router, Data: submit})
	return calls, nil
}
