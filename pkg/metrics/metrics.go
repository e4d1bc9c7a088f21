// Package metrics 提供筛选流水线的Prometheus指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 应用指标集合，nil 接收者上的方法均为空操作
type Metrics struct {
	registry *prometheus.Registry

	PriceRefreshes   *prometheus.CounterVec
	PriceValue       prometheus.Gauge
	PriceObservedAt  prometheus.Gauge
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	CandidatesSeen   prometheus.Counter
	Verdicts         *prometheus.CounterVec
	Rejections       *prometheus.CounterVec
	EnrichmentErrors prometheus.Counter
	EventsPublished  *prometheus.CounterVec
	FeedbackMessages *prometheus.CounterVec
	TaskRuns         *prometheus.CounterVec
}

// NewMetrics 在独立注册表上创建指标
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_radar"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		PriceRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "refreshes_total",
			Help:      "Reference price refresh attempts by result",
		}, []string{"result"}),
		PriceValue: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "value_usd",
			Help:      "Last cached reference price in USD",
		}),
		PriceObservedAt: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "observed_timestamp_seconds",
			Help:      "Unix time of the last successful price refresh",
		}),

		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "cycles_total",
			Help:      "Screening cycles by result",
		}, []string{"result"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a screening cycle",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		CandidatesSeen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "candidates_total",
			Help:      "Candidates returned by the trend source",
		}),
		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "verdicts_total",
			Help:      "Screening verdicts by outcome",
		}, []string{"outcome"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "rejections_total",
			Help:      "Rejected candidates by failing rule",
		}, []string{"rule"}),
		EnrichmentErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screening",
			Name:      "enrichment_errors_total",
			Help:      "Detail fetches that failed for approved candidates",
		}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Approval events by publish result; queued means accepted by an async channel and not yet acknowledged",
		}, []string{"backend", "result"}),
		FeedbackMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "feedback_messages_total",
			Help:      "Messages received on feedback channels",
		}, []string{"channel"}),

		TaskRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_runs_total",
			Help:      "Scheduled task executions by task and result",
		}, []string{"task", "result"}),
	}
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObservePriceRefresh 记录一次价格刷新
func (m *Metrics) ObservePriceRefresh(price float64, observedAt time.Time, err error) {
	if m == nil {
		return
	}
	m.PriceRefreshes.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.PriceValue.Set(price)
		m.PriceObservedAt.Set(float64(observedAt.Unix()))
	}
}

// ObserveCycle 记录一次筛选周期
func (m *Metrics) ObserveCycle(d time.Duration, candidates int, err error) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result(err)).Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.CandidatesSeen.Add(float64(candidates))
}

// ObserveVerdict 记录单个候选的结论
func (m *Metrics) ObserveVerdict(outcome, rule string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(outcome).Inc()
	if rule != "" {
		m.Rejections.WithLabelValues(rule).Inc()
	}
}

// ObserveEnrichmentError 记录详情获取失败
func (m *Metrics) ObserveEnrichmentError() {
	if m == nil {
		return
	}
	m.EnrichmentErrors.Inc()
}

// ObservePublish 记录事件发布结果
func (m *Metrics) ObservePublish(backend string, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(backend, result(err)).Inc()
}

// ObservePublishQueued 记录已提交到异步通道、尚未确认的事件
func (m *Metrics) ObservePublishQueued(backend string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(backend, "queued").Inc()
}

// ObserveDelivery 记录异步通道的投递确认
func (m *Metrics) ObserveDelivery(backend string, messages int, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(backend, result(err)).Add(float64(messages))
}

// ObserveFeedback 记录反馈消息
func (m *Metrics) ObserveFeedback(channel string) {
	if m == nil {
		return
	}
	m.FeedbackMessages.WithLabelValues(channel).Inc()
}

// ObserveTask 记录定时任务执行
func (m *Metrics) ObserveTask(task string, err error) {
	if m == nil {
		return
	}
	m.TaskRuns.WithLabelValues(task, result(err)).Inc()
}
