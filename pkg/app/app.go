// Package app 负责组装筛选服务的各个组件并管理其生命周期
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"TokenRadar/pkg/api"
	"TokenRadar/pkg/collector"
	"TokenRadar/pkg/config"
	"TokenRadar/pkg/engine"
	"TokenRadar/pkg/messaging"
	"TokenRadar/pkg/metrics"
	"TokenRadar/pkg/monitor"
	"TokenRadar/pkg/pricecache"
	"TokenRadar/pkg/scheduler"
)

// 定时任务名
const (
	TaskPriceRefresh = "sol_price_refresh"
	TaskAnalysis     = "token_analysis"
)

// componentPriceFreshness 价格新鲜度探测的组件名
const componentPriceFreshness = "price_freshness"

// Deps 可替换的外部依赖，为空时按配置创建
type Deps struct {
	Trend   collector.TrendSource
	Detail  collector.DetailFetcher
	Price   collector.PriceSource
	Channel messaging.EventChannel
}

// App 服务依赖容器
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	metrics *metrics.Metrics
	monitor *monitor.Monitor

	channel   messaging.EventChannel
	prices    *pricecache.Cache
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	server    *api.Server
	feedback  *messaging.FeedbackListener

	pricePeriod time.Duration
	closers     []func() error
}

// New 按配置组装所有组件
func New(cfg *config.Config, logger *zap.Logger, deps Deps) (*App, error) {
	a := &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewMetrics(""),
		monitor: monitor.NewMonitor(monitor.LogAlert(logger)),
	}

	if err := a.buildSources(&deps); err != nil {
		return nil, err
	}
	if err := a.buildChannel(&deps); err != nil {
		return nil, err
	}

	period, err := scheduler.Period(cfg.Scheduler.PriceRefreshInterval)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("解析价格刷新间隔失败: %w", err)
	}
	a.pricePeriod = period
	staleness := time.Duration(cfg.Pricing.StalenessMultiplier * float64(period))

	a.prices = pricecache.New(deps.Price, pricecache.Options{
		AssetID:         cfg.Pricing.AssetID,
		StalenessWindow: staleness,
		Timeout:         cfg.Pricing.Timeout,
		Logger:          logger.Named("price"),
		Metrics:         a.metrics,
		Monitor:         a.monitor,
	})

	publisher := messaging.NewEventPublisher(a.channel, messaging.PublisherOptions{
		Channel: cfg.Events.Channel,
		Backend: cfg.Events.Backend,
		Timeout: cfg.Events.PublishTimeout,
		Logger:  logger.Named("events"),
		Metrics: a.metrics,
		Monitor: a.monitor,
	})

	a.engine = engine.NewEngine(deps.Trend, deps.Detail, a.prices, publisher, engine.Options{
		Policy:        PolicyFromConfig(cfg),
		TrendPeriod:   cfg.Axiom.TimePeriod,
		UserID:        cfg.Position.UserID,
		StripFields:   cfg.Enrichment.StripFields,
		TrendTimeout:  cfg.Axiom.Timeout,
		DetailTimeout: cfg.Axiom.Timeout,
		Logger:        logger.Named("engine"),
		Metrics:       a.metrics,
		Monitor:       a.monitor,
	})

	if err := a.buildScheduler(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildFeedback(); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.HTTP.Enabled {
		if cfg.App.Env == "prod" {
			gin.SetMode(gin.ReleaseMode)
		}
		handlers := api.NewHandlers(a.prices, a.engine, a.scheduler, a.monitor, a.metrics)
		a.server = api.NewServer(cfg.HTTP.Addr, handlers, logger.Named("http"))
	}

	logger.Info("组件初始化完成",
		zap.String("backend", cfg.Events.Backend),
		zap.String("channel", cfg.Events.Channel),
		zap.Duration("price_staleness", staleness),
		zap.Bool("http", cfg.HTTP.Enabled),
		zap.Bool("feedback", a.feedback != nil))
	return a, nil
}

// PolicyFromConfig 由配置生成准入策略
func PolicyFromConfig(cfg *config.Config) engine.Policy {
	return engine.Policy{
		AllowedProtocols:      cfg.Screening.AllowedProtocols,
		MinAge:                time.Duration(cfg.Screening.MinAgeHours * float64(time.Hour)),
		MaxBundlersPercent:    cfg.Screening.MaxBundlersPercent,
		MinVolumeUSD:          cfg.Screening.MinVolumeUSD,
		MinMarketCapUSD:       cfg.Screening.MinMarketCapUSD,
		MinHolders:            cfg.Screening.MinHolders,
		BuyAmountUSD:          cfg.Position.BuyAmountUSD,
		StopLossPct:           cfg.Position.StopLossPct,
		TakeProfitElevatedPct: cfg.Position.TakeProfitElevatedPct,
		TakeProfitBasePct:     cfg.Position.TakeProfitBasePct,
		AgeTierBoundary:       time.Duration(cfg.Position.AgeTierBoundaryMinutes * float64(time.Minute)),
	}
}

func (a *App) buildSources(deps *Deps) error {
	cfg := a.cfg
	if deps.Price == nil {
		client, err := collector.NewPriceClient(cfg.Pricing.BaseURL, collector.HTTPOptions{
			Timeout:   cfg.Pricing.Timeout,
			UserAgent: cfg.Axiom.UserAgent,
		})
		if err != nil {
			return fmt.Errorf("创建价格客户端失败: %w", err)
		}
		deps.Price = client
	}

	if deps.Trend == nil || deps.Detail == nil {
		axiom, err := collector.NewAxiomClient(cfg.Axiom.TrendBaseURL, cfg.Axiom.DetailBaseURL, collector.HTTPOptions{
			Timeout:   cfg.Axiom.Timeout,
			ProxyURL:  cfg.Axiom.ProxyURL,
			UserAgent: cfg.Axiom.UserAgent,
			Cookies:   cfg.Axiom.Cookies,
		})
		if err != nil {
			return fmt.Errorf("创建Axiom客户端失败: %w", err)
		}
		if deps.Trend == nil {
			deps.Trend = axiom
		}
		if deps.Detail == nil {
			deps.Detail = axiom
		}
	}
	return nil
}

func (a *App) buildChannel(deps *Deps) error {
	if deps.Channel == nil {
		ch, err := messaging.NewEventChannel(a.cfg, a.logger.Named("channel"))
		if err != nil {
			return fmt.Errorf("创建事件通道失败: %w", err)
		}
		deps.Channel = ch
	}
	a.channel = deps.Channel
	a.closers = append(a.closers, a.channel.Close)
	return nil
}

func (a *App) buildScheduler() error {
	cfg := a.cfg
	a.scheduler = scheduler.NewScheduler(a.logger.Named("scheduler"), a.metrics)

	pricePolicy, err := scheduler.ParseOverlapPolicy(cfg.Scheduler.PriceOverlap)
	if err != nil {
		return err
	}
	analysisPolicy, err := scheduler.ParseOverlapPolicy(cfg.Scheduler.AnalysisOverlap)
	if err != nil {
		return err
	}

	if err := a.scheduler.AddTask(TaskPriceRefresh, cfg.Scheduler.PriceRefreshInterval, pricePolicy, a.prices.Refresh); err != nil {
		return err
	}
	return a.scheduler.AddTask(TaskAnalysis, cfg.Scheduler.AnalysisInterval, analysisPolicy, func(ctx context.Context) error {
		_, err := a.engine.RunOnce(ctx)
		return err
	})
}

func (a *App) buildFeedback() error {
	cfg := a.cfg
	if !cfg.Feedback.Enabled {
		return nil
	}

	sub, ok := a.channel.(messaging.Subscriber)
	if !ok {
		rc, err := messaging.NewRedisChannel(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, a.logger.Named("feedback"))
		if err != nil {
			return fmt.Errorf("创建回执订阅通道失败: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		sub = rc
	}
	a.feedback = messaging.NewFeedbackListener(sub, messaging.FeedbackOptions{
		Channels: cfg.Feedback.Channels,
		Respond:  cfg.Feedback.Respond,
		RetryMin: cfg.Feedback.RetryMin,
		RetryMax: cfg.Feedback.RetryMax,
		Logger:   a.logger.Named("feedback"),
		Metrics:  a.metrics,
		Monitor:  a.monitor,
	})
	return nil
}

// Run 启动所有后台组件，阻塞直到 ctx 结束或出现致命错误
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.scheduler.Start(gctx)
		<-gctx.Done()
		a.scheduler.Stop()
		return nil
	})

	a.monitor.StartChecking(gctx, componentPriceFreshness, a.pricePeriod, monitor.StatusUnhealthy, a.prices.Probe)

	if a.server != nil {
		g.Go(func() error {
			return a.server.Run(gctx)
		})
	}

	// 回执监听自行重连，失败不影响调度
	if a.feedback != nil {
		g.Go(func() error {
			a.feedback.Run(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// RunOnce 刷新一次价格并执行一次筛选周期
func (a *App) RunOnce(ctx context.Context) (*engine.CycleReport, error) {
	if err := a.prices.Refresh(ctx); err != nil {
		a.logger.Warn("价格刷新失败，继续执行筛选", zap.Error(err))
	}
	return a.engine.RunOnce(ctx)
}

// Engine 返回筛选引擎
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Monitor 返回健康登记表
func (a *App) Monitor() *monitor.Monitor {
	return a.monitor
}

// Close 释放外部连接，可重复调用
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("关闭连接失败", zap.Error(err))
		}
	}
	a.closers = nil
}
