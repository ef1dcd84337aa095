package config

import (
	"gopkg.in/yaml.v3"

	"github.com/StefanIliev545/kapan-sub001/pkg/logger"
)

type LogConfig struct {
	Format   string `yaml:"format"`   // 日志格式，支持 "console" 或 "json"
	LogDir   string `yaml:"log_dir"`  // 日志目录（可为相对路径或绝对路径）
	Level    string `yaml:"level"`    // 日志级别：debug / info / warn / error
	Compress bool   `yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// RestConfig 计划服务监听配置
type RestConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProtocolConfig 单个借贷协议/市场的部署配置
type ProtocolConfig struct {
	Name                    string `yaml:"name"`   // 协议名：aave_v3 / compound_v3 / venus
	Market                  string `yaml:"market"` // 市场入口合约地址（hex）
	LtvBps                  uint32 `yaml:"ltv_bps"`
	LiquidationThresholdBps uint32 `yaml:"liquidation_threshold_bps"`
}

// LenderConfig 单个闪电贷出借方配置
type LenderConfig struct {
	Address string `yaml:"address"`
	FeeBps  uint32 `yaml:"fee_bps"`
}

// PlannerDefaults 未在请求中指定时的默认参数
type PlannerDefaults struct {
	SlippageBps uint32 `yaml:"slippage_bps"`
	NumChunks   int    `yaml:"num_chunks"`
}

// PlannerConfig 是主配置结构体，用于驱动杠杆计划服务
type PlannerConfig struct {
	LogConf LogConfig  `yaml:"logger"`
	Rest    RestConfig `yaml:"rest"`

	ChainID uint32 `yaml:"chain_id"`
	Router  string `yaml:"router"` // 订单路由合约地址（hex）

	Protocols []ProtocolConfig `yaml:"protocols"`
	Lenders   []LenderConfig   `yaml:"lenders"` // 按偏好排序，0 费率优先
	Defaults  PlannerDefaults  `yaml:"defaults"`
}

// Dump 输出生效配置的 yaml 文本（用于启动日志）
func (c *PlannerConfig) Dump() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(out)
}
