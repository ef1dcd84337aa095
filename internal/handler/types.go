package handler

// AssetReq 请求中的单个资产描述
type AssetReq struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	PriceUsd string `json:"priceUsd,optional"` // 8 位定点；缺省时由价格缓存补全
}

// QuoteReq 单个 venue 已落定的报价
type QuoteReq struct {
	Venue     string `json:"venue"`
	Adapter   string `json:"adapter"`
	BuyAmount string `json:"buyAmount"`
	Calldata  string `json:"calldata"` // hex
}

// PlanRequest 一次计划请求：完整的仓位快照 + 已落定的报价列表
type PlanRequest struct {
	Protocol string `json:"protocol"` // aave_v3 / compound_v3 / venus
	User     string `json:"user"`
	Mode     string `json:"mode,options=direct|flash_loan|zap,default=flash_loan"`

	Collateral AssetReq `json:"collateral"`
	Debt       AssetReq `json:"debt"`

	MarginAmount string  `json:"marginAmount"`
	Leverage     float64 `json:"leverage"`
	SlippageBps  uint32  `json:"slippageBps,optional"`
	NumChunks    int     `json:"numChunks,optional"`

	LtvBps                  uint32 `json:"ltvBps"`
	LiquidationThresholdBps uint32 `json:"liquidationThresholdBps"`

	Quotes []QuoteReq `json:"quotes,optional"`
}

// CallResp 单个 (目标合约, calldata) 对
type CallResp struct {
	To   string `json:"to"`
	Data string `json:"data"` // hex
}

// ChunkResp 单个 chunk 的编译结果
type ChunkResp struct {
	SellAmount   string     `json:"sellAmount"`
	MinBuyAmount string     `json:"minBuyAmount"`
	Calls        []CallResp `json:"calls"`
}

// PlanResponse 完整的计划输出
type PlanResponse struct {
	Ready       bool   `json:"ready"` // false 表示 NotReady（缺报价等），调用方应展示禁用态
	Explanation string `json:"explanation"`

	MaxLeverage      float64 `json:"maxLeverage"`
	HealthFactor     string  `json:"healthFactor"` // 数值或 "inf"
	LiquidationPrice string  `json:"liquidationPrice,omitempty"`
	Ltv              float64 `json:"ltv"`

	UseFlashLoan bool        `json:"useFlashLoan"`
	NumChunks    int         `json:"numChunks"`
	ChunkSizes   []string    `json:"chunkSizes"`
	Chunks       []ChunkResp `json:"chunks"`
}
