package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"TokenRadar/pkg/engine"
	"TokenRadar/pkg/metrics"
	"TokenRadar/pkg/model"
	"TokenRadar/pkg/monitor"
	"TokenRadar/pkg/scheduler"
)

// PriceView 价格缓存的只读视图
type PriceView interface {
	Get() (float64, bool)
	Snapshot() (model.ReferencePrice, bool)
}

// ReportSource 最近一次筛选周期统计
type ReportSource interface {
	LastReport() *engine.CycleReport
}

// TaskRunner 定时任务状态与手动触发
type TaskRunner interface {
	Tasks() []scheduler.TaskInfo
	RunNow(name string) error
}

// Handlers API处理程序
type Handlers struct {
	prices  PriceView
	reports ReportSource
	tasks   TaskRunner
	monitor *monitor.Monitor
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewHandlers 创建新的API处理程序
func NewHandlers(prices PriceView, reports ReportSource, tasks TaskRunner, mon *monitor.Monitor, m *metrics.Metrics) *Handlers {
	return &Handlers{
		prices:  prices,
		reports: reports,
		tasks:   tasks,
		monitor: mon,
		metrics: m,
		now:     time.Now,
	}
}

// HealthCheck 健康检查处理程序
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// ReadinessCheck 就绪检查，参考价格可用时才算就绪
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	if _, ok := h.prices.Get(); !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": model.ErrStalePrice.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// Status 汇总组件状态、价格与最近一次周期
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"components": h.monitor.GetAllStatus(),
		"price":      h.priceView(),
		"last_cycle": h.reports.LastReport(),
		"tasks":      h.tasks.Tasks(),
	})
}

// GetPrice 查询缓存价格
func (h *Handlers) GetPrice(c *gin.Context) {
	c.JSON(http.StatusOK, h.priceView())
}

// GetLastCycle 查询最近一次筛选周期
func (h *Handlers) GetLastCycle(c *gin.Context) {
	report := h.reports.LastReport()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "尚未完成任何筛选周期",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetTasks 查询定时任务状态
func (h *Handlers) GetTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": h.tasks.Tasks(),
	})
}

// RunTask 异步触发一次任务
func (h *Handlers) RunTask(c *gin.Context) {
	name := c.Param("name")

	found := false
	for _, t := range h.tasks.Tasks() {
		if t.Name == name {
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "任务不存在: " + name,
		})
		return
	}

	go func() { _ = h.tasks.RunNow(name) }()
	c.JSON(http.StatusAccepted, gin.H{
		"status": "triggered",
		"task":   name,
	})
}

type priceView struct {
	Available  bool      `json:"available"`
	Value      float64   `json:"value,omitempty"`
	ObservedAt time.Time `json:"observed_at,omitempty"`
	AgeSeconds float64   `json:"age_seconds,omitempty"`
}

func (h *Handlers) priceView() priceView {
	var v priceView
	_, v.Available = h.prices.Get()
	if snap, ok := h.prices.Snapshot(); ok {
		v.Value = snap.Value
		v.ObservedAt = snap.ObservedAt
		v.AgeSeconds = snap.Age(h.now()).Seconds()
	}
	return v
}
