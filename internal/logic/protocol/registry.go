package protocol

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/StefanIliev545/kapan-sub001/internal/consts"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/instruction"
	"github.com/StefanIliev545/kapan-sub001/internal/logic/tape"
	"github.com/StefanIliev545/kapan-sub001/internal/types"
)

// Strategy 某个借贷协议的指令编码策略：执行面标签 + 市场入口 + 上下文字节布局。
// 协议差异全部收敛到这里，flow 编译器不感知任何协议细节。
type Strategy struct {
	Surface instruction.Surface
	Market  common.Address // 协议入口合约（Aave Pool / Comet / Venus 池）
}

var contextArgs = abi.Arguments{
	{Type: mustType("address")}, // market
	{Type: mustType("address")}, // onBehalfOf
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Errorf("abi type %q: %v", name, err))
	}
	return t
}

// Context 生成借贷指令的协议上下文字节：(market, onBehalfOf) 的 ABI 编码
func (s Strategy) Context(onBehalfOf common.Address) []byte {
	packed, err := contextArgs.Pack(s.Market, onBehalfOf)
	if err != nil {
		panic(fmt.Errorf("pack protocol context: %v", err))
	}
	return packed
}

// Spender 返回授权目标（即市场入口合约）
func (s Strategy) Spender() common.Address {
	return s.Market
}

// DepositCollateral 按磁带索引存入抵押品
func (s Strategy) DepositCollateral(idx tape.Index, token, onBehalfOf common.Address) instruction.Instruction {
	return instruction.LendingRef(instruction.OpDepositCollateral, s.Surface, idx, token, onBehalfOf, s.Context(onBehalfOf))
}

// DepositCollateralAmount 按字面数量存入抵押品（独立调用，无磁带上下文时使用）
func (s Strategy) DepositCollateralAmount(amount *uint256.Int, token, onBehalfOf common.Address) instruction.Instruction {
	return instruction.Lending(instruction.OpDepositCollateral, s.Surface, instruction.AmountLiteral, amount, token, onBehalfOf, s.Context(onBehalfOf))
}

// Deposit 按磁带索引普通存入
func (s Strategy) Deposit(idx tape.Index, token, onBehalfOf common.Address) instruction.Instruction {
	return instruction.LendingRef(instruction.OpDeposit, s.Surface, idx, token, onBehalfOf, s.Context(onBehalfOf))
}

// Borrow 借出字面数量的 token，划转给 beneficiary（通常是结算面）
func (s Strategy) Borrow(amount *uint256.Int, token, beneficiary, onBehalfOf common.Address) instruction.Instruction {
	return instruction.Lending(instruction.OpBorrow, s.Surface, instruction.AmountLiteral, amount, token, beneficiary, s.Context(onBehalfOf))
}

// Repay 按磁带索引偿还债务
func (s Strategy) Repay(idx tape.Index, token, onBehalfOf common.Address) instruction.Instruction {
	return instruction.LendingRef(instruction.OpRepay, s.Surface, idx, token, onBehalfOf, s.Context(onBehalfOf))
}

// Withdraw 提取字面数量的抵押品
func (s Strategy) Withdraw(amount *uint256.Int, token, onBehalfOf common.Address) instruction.Instruction {
	return instruction.Lending(instruction.OpWithdraw, s.Surface, instruction.AmountLiteral, amount, token, onBehalfOf, s.Context(onBehalfOf))
}

var (
	mu       sync.RWMutex
	registry = map[types.Protocol]Strategy{}
)

// Register 注册或覆盖某协议变体的编码策略（配置层可用部署地址覆盖默认值）
func Register(p types.Protocol, s Strategy) {
	mu.Lock()
	defer mu.Unlock()
	registry[p] = s
}

// Lookup 查找协议策略。未注册的变体直接报错，杜绝字符串匹配时代的静默回退。
func Lookup(p types.Protocol) (Strategy, error) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := registry[p]
	if !ok {
		return Strategy{}, fmt.Errorf("protocol %s has no registered encoding strategy", p)
	}
	return s, nil
}

func init() {
	Register(types.ProtocolAaveV3, Strategy{Surface: instruction.SurfaceAaveV3, Market: consts.AaveV3Pool})
	Register(types.ProtocolCompoundV3, Strategy{Surface: instruction.SurfaceCompoundV3, Market: consts.CompoundUSDC})
	Register(types.ProtocolVenus, Strategy{Surface: instruction.SurfaceVenus, Market: consts.VenusCorePool})
}
