package types

import "fmt"

// Protocol 借贷协议的封闭枚举。
// 协议只能取这里列出的变体，未注册的变体在查表时直接报错，不存在字符串匹配的静默回退。
type Protocol uint8

const (
	ProtocolUnknown Protocol = iota
	ProtocolAaveV3
	ProtocolCompoundV3
	ProtocolVenus
)

func (p Protocol) String() string {
	switch p {
	case ProtocolAaveV3:
		return "aave_v3"
	case ProtocolCompoundV3:
		return "compound_v3"
	case ProtocolVenus:
		return "venus"
	default:
		return "unknown"
	}
}

// Valid 判断是否为已知协议变体
func (p Protocol) Valid() bool {
	return p > ProtocolUnknown && p <= ProtocolVenus
}

// TryProtocolFromName 解析配置/请求中的协议名，失败时返回 error（用于不信任输入路径）
func TryProtocolFromName(name string) (Protocol, error) {
	switch name {
	case "aave_v3":
		return ProtocolAaveV3, nil
	case "compound_v3":
		return ProtocolCompoundV3, nil
	case "venus":
		return ProtocolVenus, nil
	default:
		return ProtocolUnknown, fmt.Errorf("unknown lending protocol %q", name)
	}
}
