package model

// ActionCreateTokenWithPosition 下游执行系统识别的动作名
const ActionCreateTokenWithPosition = "createTokenWithPosition"

// PositionInfo 建仓参数
type PositionInfo struct {
	BuyAmountUSD   float64        `json:"buyAmountUsd"`
	TakeProfitPct  float64        `json:"takeProfitPct"`
	StopLossPct    float64        `json:"stopLossPct"`
	EnrichedDetail map[string]any `json:"enrichedDetail"`
}

// ApprovalEvent 通过筛选后发往执行系统的事件
type ApprovalEvent struct {
	Action       string       `json:"action"`
	TokenAddress string       `json:"tokenAddress"`
	PositionInfo PositionInfo `json:"positionInfo"`
	UserID       string       `json:"userId"`
}

// NewApprovalEvent 由筛选结论与合并后的详情构造事件
func NewApprovalEvent(v ScreeningVerdict, detail map[string]any, userID string) ApprovalEvent {
	return ApprovalEvent{
		Action:       ActionCreateTokenWithPosition,
		TokenAddress: v.Candidate.Address,
		PositionInfo: PositionInfo{
			BuyAmountUSD:   v.BuyAmountUSD,
			TakeProfitPct:  v.TakeProfitPct,
			StopLossPct:    v.StopLossPct,
			EnrichedDetail: detail,
		},
		UserID: userID,
	}
}

// MergeDetail 将详情覆盖合并到原始记录上，并移除体积较大的字段
func MergeDetail(raw RawCandidate, detail map[string]any, stripFields []string) map[string]any {
	merged := make(map[string]any, len(raw)+len(detail))
	for k, v := range raw {
		merged[k] = v
	}
	for k, v := range detail {
		merged[k] = v
	}
	for _, f := range stripFields {
		delete(merged, f)
	}
	return merged
}
