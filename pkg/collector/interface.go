package collector

import (
	"context"

	"TokenRadar/pkg/model"
)

// TrendSource 热门代币列表获取接口
type TrendSource interface {
	FetchTrending(ctx context.Context, period string) ([]model.RawCandidate, error)
}

// PriceSource 参考价格获取接口
type PriceSource interface {
	FetchPrice(ctx context.Context, assetID string) (float64, error)
}

// DetailFetcher 交易对详情获取接口
type DetailFetcher interface {
	FetchDetail(ctx context.Context, pairID string) (map[string]any, error)
}
