package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"TokenRadar/pkg/model"
)

// axiomOrigin 请求头中使用的站点来源
const axiomOrigin = "https://axiom.trade"

// AxiomClient Axiom 热门榜单与交易对详情客户端
type AxiomClient struct {
	trendBaseURL  string
	detailBaseURL string
	http          *HTTPClient
}

// NewAxiomClient 创建Axiom客户端
func NewAxiomClient(trendBaseURL, detailBaseURL string, opts HTTPOptions) (*AxiomClient, error) {
	if opts.Origin == "" {
		opts.Origin = axiomOrigin
	}
	client, err := NewHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	return &AxiomClient{
		trendBaseURL:  strings.TrimRight(trendBaseURL, "/"),
		detailBaseURL: strings.TrimRight(detailBaseURL, "/"),
		http:          client,
	}, nil
}

// FetchTrending 获取指定时间窗口的热门代币列表
func (a *AxiomClient) FetchTrending(ctx context.Context, period string) ([]model.RawCandidate, error) {
	apiURL := fmt.Sprintf("%s/new-trending?timePeriod=%s", a.trendBaseURL, url.QueryEscape(period))

	var items []map[string]any
	if err := a.http.GetJSON(ctx, apiURL, &items); err != nil {
		return nil, fmt.Errorf("获取热门代币失败: %w", err)
	}

	result := make([]model.RawCandidate, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		result = append(result, model.RawCandidate(item))
	}
	return result, nil
}

// FetchDetail 获取交易对详情
func (a *AxiomClient) FetchDetail(ctx context.Context, pairID string) (map[string]any, error) {
	apiURL := fmt.Sprintf("%s/token-info?pairAddress=%s", a.detailBaseURL, url.QueryEscape(pairID))

	var detail map[string]any
	if err := a.http.GetJSON(ctx, apiURL, &detail); err != nil {
		return nil, fmt.Errorf("获取交易对详情失败 %s: %w", pairID, err)
	}
	if detail == nil {
		detail = map[string]any{}
	}
	return detail, nil
}
