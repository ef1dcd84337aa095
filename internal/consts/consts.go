package consts

import (
	"runtime"

	"github.com/StefanIliev545/kapan-sub001/internal/types"
)

const (
	ChainIDEthereum uint32 = 1
	ChainIDArbitrum uint32 = 42161
)

const (
	// MaxChunks 单次操作最多拆分的块数（闪电贷分支与容量分支共用的硬上限）
	MaxChunks = 100

	// SafetyBufferBps 容量推演时对协议 LTV 的安全折扣（90%）
	SafetyBufferBps types.Bps = 9000
)

// CpuCount 表示逻辑 CPU 核心数，用于控制并发任务调度上限
var CpuCount = runtime.NumCPU()
