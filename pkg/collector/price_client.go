package collector

import (
	"context"
	"fmt"
	"strings"

	"TokenRadar/pkg/model"
)

// priceResponse 价格服务返回结构
type priceResponse struct {
	Price any `json:"price"`
}

// PriceClient 内部价格服务客户端
type PriceClient struct {
	baseURL string
	http    *HTTPClient
}

// NewPriceClient 创建价格服务客户端
func NewPriceClient(baseURL string, opts HTTPOptions) (*PriceClient, error) {
	client, err := NewHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	return &PriceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
	}, nil
}

// FetchPrice 获取资产的美元价格，非正数视为失败
func (p *PriceClient) FetchPrice(ctx context.Context, assetID string) (float64, error) {
	apiURL := fmt.Sprintf("%s/price/%s", p.baseURL, assetID)

	var resp priceResponse
	if err := p.http.GetJSON(ctx, apiURL, &resp); err != nil {
		return 0, fmt.Errorf("获取价格失败: %w", err)
	}

	price, err := model.ParsePrice(resp.Price)
	if err != nil {
		return 0, fmt.Errorf("%w: 价格字段非法: %v", model.ErrTransientFetch, err)
	}
	return price, nil
}
