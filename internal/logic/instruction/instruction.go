package instruction

// Surface 指令的执行面：router 本身，或某个具名借贷协议的适配器
type Surface uint8

const (
	SurfaceRouter Surface = iota
	SurfaceAaveV3
	SurfaceCompoundV3
	SurfaceVenus
)

func (s Surface) String() string {
	switch s {
	case SurfaceRouter:
		return "router"
	case SurfaceAaveV3:
		return "aave_v3"
	case SurfaceCompoundV3:
		return "compound_v3"
	case SurfaceVenus:
		return "venus"
	default:
		return "invalid"
	}
}

// Instruction 一条原子指令：执行面 + 不透明负载。
// 构建完成后不可变；负载布局见 codec.go，对消费合约的 ABI 兼容性是冻结的。
type Instruction struct {
	Surface Surface
	Payload []byte
}
