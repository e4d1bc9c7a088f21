package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 组件状态取值
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus 健康状态
type HealthStatus struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	Message     string    `json:"message,omitempty"`
}

// AlertFunc 状态变为非健康时的回调
type AlertFunc func(component, status, message string)

// Monitor 组件健康登记表，nil 接收者上的写操作为空操作
type Monitor struct {
	components map[string]*HealthStatus
	mutex      sync.RWMutex
	alertFunc  AlertFunc
}

// NewMonitor 创建新的监控系统
func NewMonitor(alertFunc AlertFunc) *Monitor {
	return &Monitor{
		components: make(map[string]*HealthStatus),
		alertFunc:  alertFunc,
	}
}

// LogAlert 返回写入日志的告警回调
func LogAlert(logger *zap.Logger) AlertFunc {
	return func(component, status, message string) {
		logger.Warn("组件状态异常",
			zap.String("component", component),
			zap.String("status", status),
			zap.String("message", message))
	}
}

// RegisterComponent 注册组件
func (m *Monitor) RegisterComponent(component string) {
	if m == nil {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.components[component]; exists {
		return
	}
	m.components[component] = &HealthStatus{
		Component:   component,
		Status:      StatusUnknown,
		LastChecked: time.Now(),
	}
}

// UpdateStatus 更新组件状态
func (m *Monitor) UpdateStatus(component, status, message string) {
	if m == nil {
		return
	}
	m.mutex.Lock()
	entry, exists := m.components[component]
	if !exists {
		entry = &HealthStatus{Component: component}
		m.components[component] = entry
	}
	oldStatus := entry.Status
	entry.Status = status
	entry.LastChecked = time.Now()
	entry.Message = message
	m.mutex.Unlock()

	// 状态变为不健康时触发告警
	if oldStatus != status && status != StatusHealthy && m.alertFunc != nil {
		m.alertFunc(component, status, message)
	}
}

// Report 根据错误更新组件状态，出错记为 degraded
func (m *Monitor) Report(component string, err error) {
	m.ReportAs(component, err, StatusDegraded)
}

// ReportAs 同 Report，出错时记为 failStatus
func (m *Monitor) ReportAs(component string, err error, failStatus string) {
	if err != nil {
		m.UpdateStatus(component, failStatus, err.Error())
		return
	}
	m.UpdateStatus(component, StatusHealthy, "")
}

// GetStatus 获取组件状态副本
func (m *Monitor) GetStatus(component string) (HealthStatus, bool) {
	if m == nil {
		return HealthStatus{}, false
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if status, exists := m.components[component]; exists {
		return *status, true
	}
	return HealthStatus{}, false
}

// GetAllStatus 获取所有组件状态，按组件名排序
func (m *Monitor) GetAllStatus() []HealthStatus {
	if m == nil {
		return nil
	}
	m.mutex.RLock()
	statuses := make([]HealthStatus, 0, len(m.components))
	for _, status := range m.components {
		statuses = append(statuses, *status)
	}
	m.mutex.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Component < statuses[j].Component
	})
	return statuses
}

// StartChecking 按固定间隔执行探测直到 ctx 结束，探测失败时记为 failStatus
func (m *Monitor) StartChecking(ctx context.Context, component string, interval time.Duration, failStatus string, probe func(context.Context) error) {
	if m == nil || interval <= 0 {
		return
	}
	m.RegisterComponent(component)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ReportAs(component, probe(ctx), failStatus)
			}
		}
	}()
}
