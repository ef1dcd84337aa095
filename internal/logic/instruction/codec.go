package instruction

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/StefanIliev545/kapan-sub001/internal/logic/tape"
)

// Op 指令负载的操作类型（负载首字节）
type Op uint8

const (
	OpPullToken Op = iota + 1
	OpPushToken
	OpApprove
	OpAdd
	OpToOutput
	OpDeposit
	OpDepositCollateral
	OpBorrow
	OpRepay
	OpWithdraw
)

func (op Op) String() string {
	switch op {
	case OpPullToken:
		return "pull_token"
	case OpPushToken:
		return "push_token"
	case OpApprove:
		return "approve"
	case OpAdd:
		return "add"
	case OpToOutput:
		return "to_output"
	case OpDeposit:
		return "deposit"
	case OpDepositCollateral:
		return "deposit_collateral"
	case OpBorrow:
		return "borrow"
	case OpRepay:
		return "repay"
	case OpWithdraw:
		return "withdraw"
	default:
		return "invalid"
	}
}

// IsLending 判断操作是否属于借贷协议操作（携带协议上下文字节）
func (op Op) IsLending() bool {
	return op >= OpDeposit && op <= OpWithdraw
}

// AmountMode 指令金额的来源
type AmountMode uint8

const (
	AmountLiteral  AmountMode = 0 // value 为字面金额
	AmountFromTape AmountMode = 1 // value 为磁带索引
)

// 负载布局（冻结，消费合约按此解码）：
//
//	[1 byte op] ++ abi.Pack(tuple)
//
// 各 op 的 tuple：
//	pull_token : (uint8 mode, uint256 value, address token, address from)
//	push_token : (uint256 index, address to)
//	approve    : (uint256 index, address spender)
//	add        : (uint256 indexA, uint256 indexB)
//	to_output  : (uint256 amount, address token)
//	借贷操作   : (uint8 mode, uint256 value, address token, address beneficiary, bytes context)
var (
	typUint8   = mustType("uint8")
	typUint256 = mustType("uint256")
	typAddress = mustType("address")
	typBytes   = mustType("bytes")

	pullTokenArgs = abi.Arguments{{Type: typUint8}, {Type: typUint256}, {Type: typAddress}, {Type: typAddress}}
	pushTokenArgs = abi.Arguments{{Type: typUint256}, {Type: typAddress}}
	approveArgs   = abi.Arguments{{Type: typUint256}, {Type: typAddress}}
	addArgs       = abi.Arguments{{Type: typUint256}, {Type: typUint256}}
	toOutputArgs  = abi.Arguments{{Type: typUint256}, {Type: typAddress}}
	lendingArgs   = abi.Arguments{{Type: typUint8}, {Type: typUint256}, {Type: typAddress}, {Type: typAddress}, {Type: typBytes}}
)

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Errorf("abi type %q: %v", name, err))
	}
	return t
}

func encodePayload(op Op, args abi.Arguments, vals ...interface{}) []byte {
	packed, err := args.Pack(vals...)
	if err != nil {
		// 入参均为静态构造，Pack 失败只可能是编码器自身的编程错误
		panic(fmt.Errorf("encode %s payload: %v", op, err))
	}
	buf := make([]byte, 1, 1+len(packed))
	buf[0] = byte(op)
	return append(buf, packed...)
}

func indexBig(i tape.Index) *big.Int {
	return new(big.Int).SetUint64(uint64(i))
}

// PullToken 从 from 拉取字面数量的 token；产出一个磁带输出
func PullToken(amount *uint256.Int, token, from common.Address) Instruction {
	return Instruction{
		Surface: SurfaceRouter,
		Payload: encodePayload(OpPullToken, pullTokenArgs, uint8(AmountLiteral), amount.ToBig(), token, from),
	}
}

// PullTokenRef 从 from 拉取磁带索引处数量的 token
func PullTokenRef(idx tape.Index, token, from common.Address) Instruction {
	return Instruction{
		Surface: SurfaceRouter,
		Payload: encodePayload(OpPullToken, pullTokenArgs, uint8(AmountFromTape), indexBig(idx), token, from),
	}
}

// PushToken 把磁带索引处的数量转给 to；不产出磁带输出
func PushToken(idx tape.Index, to common.Address) Instruction {
	return Instruction{
		Surface: SurfaceRouter,
		Payload: encodePayload(OpPushToken, pushTokenArgs, indexBig(idx), to),
	}
}

// Approve 授权 spender 支配磁带索引处的数量；不产出磁带输出
func Approve(idx tape.Index, spender common.Address) Instruction {
	return Instruction{
		Surface: SurfaceRouter,
		Payload: encodePayload(OpApprove, approveArgs, indexBig(idx), spender),
	}
}

// Add 对两个磁带输出求和；产出一个磁带输出
func Add(a, b tape.Index) Instruction {
	return Instruction{
		Surface: SurfaceRouter,
		Payload: encodePayload(OpAdd, addArgs, indexBig(a), indexBig(b)),
	}
}

// ToOutput 把外部供给的数量登记为磁带索引 0（swap 成交额等）
func ToOutput(amount *uint256.Int, token common.Address) Instruction {
	return Instruction{
		Surface: SurfaceRouter,
		Payload: encodePayload(OpToOutput, toOutputArgs, amount.ToBig(), token),
	}
}

// Lending 构造一条借贷协议指令。op 必须是借贷操作，context 为协议上下文字节。
func Lending(op Op, surface Surface, mode AmountMode, value *uint256.Int, token, beneficiary common.Address, context []byte) Instruction {
	if !op.IsLending() {
		panic(fmt.Errorf("op %s is not a lending operation", op))
	}
	if context == nil {
		context = []byte{}
	}
	return Instruction{
		Surface: surface,
		Payload: encodePayload(op, lendingArgs, uint8(mode), value.ToBig(), token, beneficiary, context),
	}
}

// LendingRef 借贷指令的磁带引用形态
func LendingRef(op Op, surface Surface, idx tape.Index, token, beneficiary common.Address, context []byte) Instruction {
	if context == nil {
		context = []byte{}
	}
	if !op.IsLending() {
		panic(fmt.Errorf("op %s is not a lending operation", op))
	}
	return Instruction{
		Surface: surface,
		Payload: encodePayload(op, lendingArgs, uint8(AmountFromTape), indexBig(idx), token, beneficiary, context),
	}
}

// Decoded 负载解码结果：按 op 填充对应字段
type Decoded struct {
	Op   Op
	Mode AmountMode

	Value       *uint256.Int // pull/借贷的字面金额或磁带索引；to_output 的金额
	Token       common.Address
	From        common.Address
	To          common.Address
	Spender     common.Address
	Beneficiary common.Address
	IndexA      tape.Index // add 的左操作数；push/approve 的索引
	IndexB      tape.Index
	Context     []byte
}

var ErrBadPayload = errors.New("instruction: malformed payload")

func toUint256(v interface{}) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: expected uint256 word", ErrBadPayload)
	}
	out, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: uint256 overflow", ErrBadPayload)
	}
	return out, nil
}

func toIndex(v interface{}) (tape.Index, error) {
	u, err := toUint256(v)
	if err != nil {
		return 0, err
	}
	if !u.IsUint64() || u.Uint64() > 0xFFFF {
		return 0, fmt.Errorf("%w: tape index out of range", ErrBadPayload)
	}
	return tape.Index(u.Uint64()), nil
}

// Decode 还原负载的类型化参数。编码后再解码必须与原始入参完全一致。
func Decode(payload []byte) (*Decoded, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: empty", ErrBadPayload)
	}
	op := Op(payload[0])
	body := payload[1:]
	d := &Decoded{Op: op}

	switch {
	case op == OpPullToken:
		vals, err := pullTokenArgs.Unpack(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		d.Mode = AmountMode(vals[0].(uint8))
		if d.Value, err = toUint256(vals[1]); err != nil {
			return nil, err
		}
		if d.Mode == AmountFromTape {
			if d.IndexA, err = toIndex(vals[1]); err != nil {
				return nil, err
			}
		}
		d.Token = vals[2].(common.Address)
		d.From = vals[3].(common.Address)

	case op == OpPushToken:
		vals, err := pushTokenArgs.Unpack(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if d.IndexA, err = toIndex(vals[0]); err != nil {
			return nil, err
		}
		d.To = vals[1].(common.Address)

	case op == OpApprove:
		vals, err := approveArgs.Unpack(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if d.IndexA, err = toIndex(vals[0]); err != nil {
			return nil, err
		}
		d.Spender = vals[1].(common.Address)

	case op == OpAdd:
		vals, err := addArgs.Unpack(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if d.IndexA, err = toIndex(vals[0]); err != nil {
			return nil, err
		}
		if d.IndexB, err = toIndex(vals[1]); err != nil {
			return nil, err
		}

	case op == OpToOutput:
		vals, err := toOutputArgs.Unpack(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if d.Value, err = toUint256(vals[0]); err != nil {
			return nil, err
		}
		d.Token = vals[1].(common.Address)

	case op.IsLending():
		vals, err := lendingArgs.Unpack(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		d.Mode = AmountMode(vals[0].(uint8))
		if d.Value, err = toUint256(vals[1]); err != nil {
			return nil, err
		}
		if d.Mode == AmountFromTape {
			if d.IndexA, err = toIndex(vals[1]); err != nil {
				return nil, err
			}
		}
		d.Token = vals[2].(common.Address)
		d.Beneficiary = vals[3].(common.Address)
		d.Context = vals[4].([]byte)

	default:
		return nil, fmt.Errorf("%w: unknown op 0x%02x", ErrBadPayload, payload[0])
	}
	return d, nil
}

// TapeRefs 返回该指令引用的全部磁带索引（供编译器做构建期校验）。
// FromTape 模式的索引在 Decode 时已做范围校验并落入 IndexA。
func (d *Decoded) TapeRefs() []tape.Index {
	switch {
	case d.Op == OpPullToken && d.Mode == AmountFromTape:
		return []tape.Index{d.IndexA}
	case d.Op == OpPushToken, d.Op == OpApprove:
		return []tape.Index{d.IndexA}
	case d.Op == OpAdd:
		return []tape.Index{d.IndexA, d.IndexB}
	case d.Op.IsLending() && d.Mode == AmountFromTape:
		return []tape.Index{d.IndexA}
	default:
		return nil
	}
}

// ProducesOutput 判断该操作是否在磁带上产出新值。
// approve / push 不产出；其余操作各产出一个。
func (op Op) ProducesOutput() bool {
	switch op {
	case OpApprove, OpPushToken:
		return false
	default:
		return true
	}
}
