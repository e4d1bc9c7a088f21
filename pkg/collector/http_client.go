package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"TokenRadar/pkg/model"
)

// maxBodyBytes 单次响应体读取上限
const maxBodyBytes = 16 << 20

// HTTPOptions HTTP客户端配置
type HTTPOptions struct {
	Timeout   time.Duration
	ProxyURL  string
	UserAgent string
	Origin    string
	Cookies   string
}

// HTTPClient 携带统一请求头与代理设置的JSON客户端
type HTTPClient struct {
	opts   HTTPOptions
	Client *http.Client
}

// NewHTTPClient 创建HTTP客户端，代理地址非法时返回错误
func NewHTTPClient(opts HTTPOptions) (*HTTPClient, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("解析代理地址失败: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	return &HTTPClient{
		opts: opts,
		Client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
	}, nil
}

// GetJSON 执行GET请求并将响应解析到 out，数字以 json.Number 保留
func (c *HTTPClient) GetJSON(ctx context.Context, rawURL string, out any) error {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: 执行HTTP请求失败: %v", model.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: 读取响应体失败: %v", model.ErrTransientFetch, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: API返回非200状态码: %d", model.ErrTransientFetch, resp.StatusCode)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: 解析响应失败: %v", model.ErrTransientFetch, err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if c.opts.Origin != "" {
		req.Header.Set("Origin", c.opts.Origin)
		req.Header.Set("Referer", c.opts.Origin+"/")
	}
	if c.opts.Cookies != "" {
		req.Header.Set("Cookie", c.opts.Cookies)
	}
}
