package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"TokenRadar/pkg/collector"
	"TokenRadar/pkg/metrics"
	"TokenRadar/pkg/model"
	"TokenRadar/pkg/monitor"
)

// 健康登记表中的组件名
const (
	ComponentTrendSource = "trend_source"
	ComponentEnrichment  = "enrichment"
)

// Publisher 通过筛选的事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event model.ApprovalEvent) error
}

// Options 筛选引擎配置
type Options struct {
	Policy      Policy
	TrendPeriod string
	UserID      string
	StripFields []string

	TrendTimeout  time.Duration
	DetailTimeout time.Duration

	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Monitor *monitor.Monitor
}

// CycleReport 单次筛选周期的统计
type CycleReport struct {
	ID               string         `json:"id"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
	Aborted          bool           `json:"aborted"`
	Error            string         `json:"error,omitempty"`
	Candidates       int            `json:"candidates"`
	Approved         int            `json:"approved"`
	Rejected         int            `json:"rejected"`
	Skipped          int            `json:"skipped"`
	Malformed        int            `json:"malformed"`
	EnrichmentFailed int            `json:"enrichment_failed"`
	Published        int            `json:"published"`
	Rejections       map[string]int `json:"rejections"`

	Verdicts []model.ScreeningVerdict `json:"-"`
}

// Engine 筛选引擎：拉取热门列表，逐个评估，通过者补充详情后发布
type Engine struct {
	chain     *Chain
	trend     collector.TrendSource
	detail    collector.DetailFetcher
	prices    PriceReader
	publisher Publisher
	opts      Options

	lastReport atomic.Pointer[CycleReport]
}

// NewEngine 创建筛选引擎
func NewEngine(
	trend collector.TrendSource,
	detail collector.DetailFetcher,
	prices PriceReader,
	publisher Publisher,
	opts Options,
) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Monitor.RegisterComponent(ComponentTrendSource)
	opts.Monitor.RegisterComponent(ComponentEnrichment)

	return &Engine{
		chain:     NewChain(opts.Policy),
		trend:     trend,
		detail:    detail,
		prices:    prices,
		publisher: publisher,
		opts:      opts,
	}
}

// Chain 返回引擎使用的规则链
func (e *Engine) Chain() *Chain {
	return e.chain
}

// LastReport 返回最近一次完成的周期统计
func (e *Engine) LastReport() *CycleReport {
	return e.lastReport.Load()
}

// RunOnce 执行一次完整的筛选周期
func (e *Engine) RunOnce(ctx context.Context) (*CycleReport, error) {
	start := e.opts.Now()
	report := &CycleReport{
		ID:         uuid.NewString(),
		StartedAt:  start,
		Rejections: make(map[string]int),
	}
	log := e.opts.Logger.With(zap.String("cycle_id", report.ID))

	err := e.run(ctx, log, report)

	report.FinishedAt = e.opts.Now()
	if err != nil {
		report.Aborted = true
		report.Error = err.Error()
		log.Error("筛选周期中止", zap.Error(err))
	} else {
		log.Info("筛选周期完成",
			zap.String("summary", fmt.Sprintf("%d/%d", report.Approved, report.Candidates)),
			zap.Int("rejected", report.Rejected),
			zap.Int("skipped", report.Skipped),
			zap.Int("published", report.Published),
			zap.Duration("elapsed", report.FinishedAt.Sub(start)))
	}
	e.opts.Metrics.ObserveCycle(report.FinishedAt.Sub(start), report.Candidates, err)
	e.lastReport.Store(report)
	return report, err
}

func (e *Engine) run(ctx context.Context, log *zap.Logger, report *CycleReport) error {
	if _, ok := e.prices.Get(); !ok {
		return fmt.Errorf("周期开始前检查价格: %w", model.ErrStalePrice)
	}

	raws, err := e.fetchTrending(ctx)
	e.opts.Monitor.Report(ComponentTrendSource, err)
	if err != nil {
		return err
	}
	report.Candidates = len(raws)
	log.Info("获取热门代币", zap.Int("count", len(raws)), zap.String("period", e.opts.TrendPeriod))

	for i, raw := range raws {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("筛选周期被取消: %w", err)
		}

		cand, err := model.ParseCandidate(raw)
		if err != nil {
			report.Skipped++
			report.Malformed++
			e.opts.Metrics.ObserveVerdict(string(model.OutcomeSkipped), "")
			log.Warn("候选代币数据非法，跳过", zap.Int("index", i), zap.Error(err))
			continue
		}

		verdict := e.chain.Evaluate(cand, e.prices, e.opts.Now())
		report.Verdicts = append(report.Verdicts, verdict)

		switch verdict.Outcome {
		case model.OutcomeRejected:
			report.Rejected++
			report.Rejections[verdict.FailedRule]++
			e.opts.Metrics.ObserveVerdict(string(verdict.Outcome), verdict.FailedRule)
			log.Debug("候选代币未通过筛选",
				zap.String("token", cand.Label()),
				zap.String("rule", verdict.FailedRule),
				zap.String("reason", verdict.Reason))
			continue
		case model.OutcomeSkipped:
			report.Skipped++
			e.opts.Metrics.ObserveVerdict(string(verdict.Outcome), "")
			log.Warn("价格不可用，跳过候选代币",
				zap.String("token", cand.Label()),
				zap.String("reason", verdict.Reason))
			continue
		}

		report.Approved++
		e.opts.Metrics.ObserveVerdict(string(verdict.Outcome), "")
		log.Info("✅ 代币通过筛选",
			zap.String("token", cand.Label()),
			zap.String("address", cand.Address),
			zap.String("protocol", cand.Protocol),
			zap.Float64("bundlers_percent", cand.BundlersHoldPercent),
			zap.Float64("volume_usd", verdict.VolumeUSD),
			zap.Float64("market_cap_usd", verdict.MarketCapUSD),
			zap.Float64("take_profit_pct", verdict.TakeProfitPct))

		published, err := e.dispatch(ctx, log, verdict)
		if err != nil {
			report.EnrichmentFailed++
			continue
		}
		if published {
			report.Published++
		}
	}
	return nil
}

func (e *Engine) fetchTrending(ctx context.Context) ([]model.RawCandidate, error) {
	if e.opts.TrendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.TrendTimeout)
		defer cancel()
	}
	raws, err := e.trend.FetchTrending(ctx, e.opts.TrendPeriod)
	if err != nil {
		if !errors.Is(err, model.ErrTransientFetch) {
			err = fmt.Errorf("%w: %v", model.ErrTransientFetch, err)
		}
		return nil, fmt.Errorf("获取热门代币列表失败: %w", err)
	}
	return raws, nil
}

// dispatch 获取详情并发布事件。详情失败返回错误且不发布；发布失败只记录
func (e *Engine) dispatch(ctx context.Context, log *zap.Logger, verdict model.ScreeningVerdict) (bool, error) {
	detailCtx := ctx
	if e.opts.DetailTimeout > 0 {
		var cancel context.CancelFunc
		detailCtx, cancel = context.WithTimeout(ctx, e.opts.DetailTimeout)
		defer cancel()
	}

	detail, err := e.detail.FetchDetail(detailCtx, verdict.Candidate.PairID)
	e.opts.Monitor.Report(ComponentEnrichment, err)
	if err != nil {
		e.opts.Metrics.ObserveEnrichmentError()
		log.Error("获取代币详情失败，不发布事件",
			zap.String("token", verdict.Candidate.Label()),
			zap.String("pair", verdict.Candidate.PairID),
			zap.Error(err))
		return false, err
	}

	merged := model.MergeDetail(verdict.Candidate.Raw, detail, e.opts.StripFields)
	event := model.NewApprovalEvent(verdict, merged, e.opts.UserID)

	if err := e.publisher.Publish(ctx, event); err != nil {
		log.Warn("事件发布失败，筛选结论不变",
			zap.String("token", verdict.Candidate.Label()),
			zap.Error(err))
		return false, nil
	}
	return true, nil
}
