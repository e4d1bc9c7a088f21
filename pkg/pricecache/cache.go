// Package pricecache 维护计价资产的最新美元价格，供筛选引擎读取
package pricecache

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"TokenRadar/pkg/collector"
	"TokenRadar/pkg/metrics"
	"TokenRadar/pkg/model"
	"TokenRadar/pkg/monitor"
)

// ComponentName 健康登记表中的组件名
const ComponentName = "price_cache"

// Options 价格缓存配置
type Options struct {
	AssetID         string
	StalenessWindow time.Duration
	// Timeout 单次刷新的超时，0 表示不限制
	Timeout time.Duration
	Now     func() time.Time

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Monitor *monitor.Monitor
}

// Cache 单值价格缓存，刷新与读取可并发
type Cache struct {
	source collector.PriceSource
	opts   Options
	latest atomic.Pointer[model.ReferencePrice]
}

// New 创建价格缓存，初始为空
func New(source collector.PriceSource, opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Monitor.RegisterComponent(ComponentName)
	return &Cache{source: source, opts: opts}
}

// Refresh 拉取最新价格，失败时保留旧值并返回错误
func (c *Cache) Refresh(ctx context.Context) error {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	price, err := c.source.FetchPrice(ctx, c.opts.AssetID)
	if err == nil && !validPrice(price) {
		err = fmt.Errorf("%w: 价格必须为有限正数: %v", model.ErrTransientFetch, price)
	}
	if err != nil {
		c.opts.Metrics.ObservePriceRefresh(0, time.Time{}, err)
		c.opts.Monitor.Report(ComponentName, err)
		c.opts.Logger.Error("刷新参考价格失败，保留旧值",
			zap.String("asset", c.opts.AssetID),
			zap.Error(err))
		return fmt.Errorf("刷新参考价格失败: %w", err)
	}

	ref := &model.ReferencePrice{Value: price, ObservedAt: c.opts.Now()}
	c.latest.Store(ref)

	c.opts.Metrics.ObservePriceRefresh(ref.Value, ref.ObservedAt, nil)
	c.opts.Monitor.Report(ComponentName, nil)
	c.opts.Logger.Info("参考价格已更新",
		zap.String("asset", c.opts.AssetID),
		zap.Float64("price_usd", ref.Value))
	return nil
}

// Get 返回未过期的价格，缓存为空或已过期时 ok 为 false
func (c *Cache) Get() (float64, bool) {
	ref := c.latest.Load()
	if ref == nil {
		return 0, false
	}
	if c.opts.StalenessWindow > 0 && ref.Age(c.opts.Now()) > c.opts.StalenessWindow {
		return 0, false
	}
	return ref.Value, true
}

// Snapshot 返回缓存中的原始记录，不做过期判断
func (c *Cache) Snapshot() (model.ReferencePrice, bool) {
	ref := c.latest.Load()
	if ref == nil {
		return model.ReferencePrice{}, false
	}
	return *ref, true
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

// Probe 健康探测，价格缺失或过期时返回 ErrStalePrice
func (c *Cache) Probe(context.Context) error {
	if _, ok := c.Get(); !ok {
		return model.ErrStalePrice
	}
	return nil
}
