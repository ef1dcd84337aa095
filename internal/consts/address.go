package consts

import "github.com/ethereum/go-ethereum/common"

// Hex 地址常量（可读性高，适合配置与日志使用）
const (
	// Arbitrum 常用资产
	WETHStr = "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"
	USDCStr = "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
	USDTStr = "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"

	// 借贷协议入口
	AaveV3PoolStr        = "0x794a61358D6845594F94dc1DB02A252b5b4814aD"
	CompoundUSDCStr      = "0x9c4ec768c28520B50860ea7a15bd7213a9fF58bf" // cUSDCv3 Comet
	VenusCorePoolStr     = "0x317c1A5739F39046E20b08ac9BeEa3f10fD43326"
	BalancerVaultStr     = "0xBA12222222228d8Ba445958a75a0704d566BF2C8" // 0 费率闪电贷
	AaveV3FlashLenderStr = AaveV3PoolStr                                // Aave 式闪电贷（计费）
)

var (
	WETH = common.HexToAddress(WETHStr)
	USDC = common.HexToAddress(USDCStr)
	USDT = common.HexToAddress(USDTStr)

	AaveV3Pool    = common.HexToAddress(AaveV3PoolStr)
	CompoundUSDC  = common.HexToAddress(CompoundUSDCStr)
	VenusCorePool = common.HexToAddress(VenusCorePoolStr)
	BalancerVault = common.HexToAddress(BalancerVaultStr)

	// ZeroAddress 特殊语义地址：表示"未设置"
	ZeroAddress = common.Address{}
)
