package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"TokenRadar/pkg/metrics"
)

// OverlapPolicy 上一次执行未结束时新触发的处理方式
type OverlapPolicy string

const (
	// OverlapAllow 允许并发执行
	OverlapAllow OverlapPolicy = "allow"
	// OverlapSkip 丢弃本次触发
	OverlapSkip OverlapPolicy = "skip"
	// OverlapDelay 等待上一次结束后再执行
	OverlapDelay OverlapPolicy = "delay"
)

// ParseOverlapPolicy 解析配置中的重叠策略
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch p := OverlapPolicy(s); p {
	case OverlapAllow, OverlapSkip, OverlapDelay:
		return p, nil
	case "":
		return OverlapSkip, nil
	default:
		return "", fmt.Errorf("未知的重叠策略: %s", s)
	}
}

// TaskFunc 定时任务函数
type TaskFunc func(ctx context.Context) error

// TaskInfo 任务运行状态
type TaskInfo struct {
	Name      string        `json:"name"`
	Spec      string        `json:"spec"`
	Policy    OverlapPolicy `json:"policy"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	Running   int           `json:"running"`
	LastStart time.Time     `json:"last_start,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Next      time.Time     `json:"next,omitempty"`
}

type task struct {
	name   string
	spec   string
	policy OverlapPolicy
	fn     TaskFunc
	job    cron.Job
	id     cron.EntryID

	mu        sync.Mutex
	runs      int64
	failures  int64
	running   int
	lastStart time.Time
	lastError string
}

// parser 5段cron表达式与 @every 等描述符
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler 任务调度器
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	cronLog cron.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	tasks  []*task
	byName map[string]*task
	ctx    context.Context
}

// NewScheduler 创建任务调度器
func NewScheduler(logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLog := zapCronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithLogger(cronLog)),
		logger:  logger,
		cronLog: cronLog,
		metrics: m,
		byName:  make(map[string]*task),
		ctx:     context.Background(),
	}
}

// AddTask 注册任务，按注册顺序执行启动时的首次运行
func (s *Scheduler) AddTask(name, spec string, policy OverlapPolicy, fn TaskFunc) error {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("解析任务 %s 的调度表达式 %q 失败: %w", name, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("任务 %s 已存在", name)
	}

	t := &task{name: name, spec: spec, policy: policy, fn: fn}
	var wrappers []cron.JobWrapper
	switch policy {
	case OverlapSkip:
		wrappers = append(wrappers, cron.SkipIfStillRunning(s.cronLog))
	case OverlapDelay:
		wrappers = append(wrappers, cron.DelayIfStillRunning(s.cronLog))
	case OverlapAllow:
	default:
		return fmt.Errorf("任务 %s 的重叠策略非法: %s", name, policy)
	}
	// Recover 放在最内层，panic 后重叠保护的令牌仍能归还
	wrappers = append(wrappers, cron.Recover(s.cronLog))
	t.job = cron.NewChain(wrappers...).Then(cron.FuncJob(func() { s.execute(t) }))
	t.id = s.cron.Schedule(schedule, t.job)

	s.tasks = append(s.tasks, t)
	s.byName[name] = t
	s.logger.Info("注册定时任务",
		zap.String("task", name),
		zap.String("spec", spec),
		zap.String("overlap", string(policy)))
	return nil
}

// Start 启动定时器，并按注册顺序同步执行每个任务一次
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	tasks := append([]*task(nil), s.tasks...)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("调度器已启动", zap.Int("tasks", len(tasks)))

	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		t.job.Run()
	}
}

// Stop 停止定时器，不等待执行中的任务
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("调度器已停止")
}

// RunNow 立即触发一次任务，遵循该任务的重叠策略
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	t, ok := s.byName[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("任务 %s 不存在", name)
	}
	t.job.Run()
	return nil
}

// Tasks 返回所有任务的运行状态
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.RLock()
	tasks := append([]*task(nil), s.tasks...)
	s.mu.RUnlock()

	infos := make([]TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		t.mu.Lock()
		info := TaskInfo{
			Name:      t.name,
			Spec:      t.spec,
			Policy:    t.policy,
			Runs:      t.runs,
			Failures:  t.failures,
			Running:   t.running,
			LastStart: t.lastStart,
			LastError: t.lastError,
		}
		t.mu.Unlock()
		info.Next = s.cron.Entry(t.id).Next
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (s *Scheduler) execute(t *task) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	start := time.Now()
	t.mu.Lock()
	t.running++
	t.lastStart = start
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.running--
		t.mu.Unlock()
	}()

	err := t.fn(ctx)

	t.mu.Lock()
	t.runs++
	if err != nil {
		t.failures++
		t.lastError = err.Error()
	} else {
		t.lastError = ""
	}
	t.mu.Unlock()

	s.metrics.ObserveTask(t.name, err)
	if err != nil {
		s.logger.Error("定时任务执行失败",
			zap.String("task", t.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	s.logger.Debug("定时任务执行完成",
		zap.String("task", t.name),
		zap.Duration("elapsed", time.Since(start)))
}

// Period 返回调度表达式相邻两次触发的间隔
func Period(spec string) (time.Duration, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return 0, fmt.Errorf("解析调度表达式 %q 失败: %w", spec, err)
	}
	if every, ok := schedule.(cron.ConstantDelaySchedule); ok {
		return every.Delay, nil
	}
	first := schedule.Next(time.Now())
	second := schedule.Next(first)
	if first.IsZero() || second.IsZero() {
		return 0, fmt.Errorf("调度表达式 %q 没有后续触发时间", spec)
	}
	return second.Sub(first), nil
}

// zapCronLogger 将 cron 内部日志转到 zap
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
