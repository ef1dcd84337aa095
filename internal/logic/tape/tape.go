package tape

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Index 指向 Tape 中某个已产生输出的位置（0..n-1）
type Index uint16

// Kind 输出值的类别
type Kind uint8

const (
	// KindTokenAmount 某 token 的数量（最小单位）
	KindTokenAmount Kind = iota + 1
	// KindReceipt 存款回执数量（aToken / cToken 份额等）
	KindReceipt
	// KindExternal 外部协作方预置的值（如 swap 成交额），只会出现在索引 0
	KindExternal
)

// Output 磁带上的一个已产生值的类型描述
type Output struct {
	Kind  Kind
	Token common.Address
}

// ErrDanglingRef 指令引用了尚不存在的磁带索引。
// 正确的编译器不会触发该错误，它属于构建期缺陷，用于防御性测试。
var ErrDanglingRef = errors.New("tape: reference to missing output")

// Tape 单个 chunk 内的输出磁带：append-only，索引自 0 递增。
// 指令只允许引用严格早于自身的输出，非法引用在构建期立即失败。
type Tape struct {
	outputs []Output
}

func New() *Tape {
	return &Tape{}
}

// ReserveExternal 预留索引 0 给外部协作方的前置值（如 swap 成交额）。
// 只允许在空磁带上调用一次。
func (t *Tape) ReserveExternal(token common.Address) (Index, error) {
	if len(t.outputs) != 0 {
		return 0, fmt.Errorf("tape: external slot must be index 0, tape already has %d outputs", len(t.outputs))
	}
	t.outputs = append(t.outputs, Output{Kind: KindExternal, Token: token})
	return 0, nil
}

// Append 追加一个新输出，返回其索引
func (t *Tape) Append(out Output) Index {
	t.outputs = append(t.outputs, out)
	return Index(len(t.outputs) - 1)
}

func (t *Tape) Len() int {
	return len(t.outputs)
}

// Check 校验索引引用是否合法（只能引用已存在的输出）
func (t *Tape) Check(i Index) error {
	if int(i) >= len(t.outputs) {
		return fmt.Errorf("%w: index %d, tape length %d", ErrDanglingRef, i, len(t.outputs))
	}
	return nil
}

// At 取出索引处的输出描述，越界时返回 ErrDanglingRef
func (t *Tape) At(i Index) (Output, error) {
	if err := t.Check(i); err != nil {
		return Output{}, err
	}
	return t.outputs[i], nil
}
