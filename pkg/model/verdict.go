package model

// Outcome 筛选结论
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	// OutcomeSkipped 因价格不可用等非代币自身原因跳过，不算规则拒绝
	OutcomeSkipped Outcome = "skipped"
)

// ScreeningVerdict 单个候选代币的筛选结论
type ScreeningVerdict struct {
	Candidate  Candidate `json:"candidate"`
	Outcome    Outcome   `json:"outcome"`
	Approved   bool      `json:"approved"`
	FailedRule string    `json:"failed_rule,omitempty"`
	Reason     string    `json:"reason,omitempty"`

	PriceUsed    float64 `json:"price_used,omitempty"`
	VolumeUSD    float64 `json:"volume_usd,omitempty"`
	MarketCapUSD float64 `json:"market_cap_usd,omitempty"`

	BuyAmountUSD  float64 `json:"buy_amount_usd,omitempty"`
	TakeProfitPct float64 `json:"take_profit_pct,omitempty"`
	StopLossPct   float64 `json:"stop_loss_pct,omitempty"`
}
