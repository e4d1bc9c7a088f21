package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"TokenRadar/pkg/metrics"
	"TokenRadar/pkg/model"
	"TokenRadar/pkg/monitor"
)

// ComponentEvents 健康登记表中的组件名
const ComponentEvents = "event_channel"

// EventPublisher 将通过筛选的事件序列化后发往通道
type EventPublisher struct {
	channel EventChannel
	name    string
	backend string
	timeout time.Duration
	// async 为 true 时发布结果以通道的投递回调为准
	async bool

	logger  *zap.Logger
	metrics *metrics.Metrics
	monitor *monitor.Monitor
}

// PublisherOptions 发布器配置
type PublisherOptions struct {
	Channel string
	Backend string
	Timeout time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Monitor *monitor.Monitor
}

// NewEventPublisher 创建发布器
func NewEventPublisher(ch EventChannel, opts PublisherOptions) *EventPublisher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Monitor.RegisterComponent(ComponentEvents)
	p := &EventPublisher{
		channel: ch,
		name:    opts.Channel,
		backend: opts.Backend,
		timeout: opts.Timeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		monitor: opts.Monitor,
	}
	if ac, ok := ch.(AsyncChannel); ok {
		p.async = true
		ac.OnDelivery(p.delivered)
	}
	return p
}

// Publish 发布一次，不重试。返回的错误仅供调用方记录
func (p *EventPublisher) Publish(ctx context.Context, event model.ApprovalEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		err = fmt.Errorf("%w: 序列化事件失败: %v", model.ErrPublish, err)
		p.record(event, 0, err)
		return err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.channel.Publish(ctx, p.name, payload); err != nil {
		err = fmt.Errorf("%w: %v", model.ErrPublish, err)
		p.record(event, len(payload), err)
		return err
	}

	p.record(event, len(payload), nil)
	return nil
}

func (p *EventPublisher) record(event model.ApprovalEvent, size int, err error) {
	fields := []zap.Field{
		zap.String("channel", p.name),
		zap.String("backend", p.backend),
		zap.String("token", event.TokenAddress),
		zap.Int("bytes", size),
	}

	// 异步通道入队成功时，成功与否留给投递回调判定
	if err == nil && p.async {
		p.metrics.ObservePublishQueued(p.backend)
		p.logger.Info("事件已提交异步发送", fields...)
		return
	}

	p.metrics.ObservePublish(p.backend, err)
	p.monitor.Report(ComponentEvents, err)
	if err != nil {
		p.logger.Error("事件发布失败", append(fields, zap.Error(err))...)
		return
	}
	p.logger.Info("事件已发布", fields...)
}

// delivered 异步通道的投递确认
func (p *EventPublisher) delivered(channel string, messages int, err error) {
	p.metrics.ObserveDelivery(p.backend, messages, err)
	if err != nil {
		err = fmt.Errorf("%w: 异步投递失败: %v", model.ErrPublish, err)
	}
	p.monitor.Report(ComponentEvents, err)
	if err != nil {
		p.logger.Error("事件异步投递失败",
			zap.String("channel", channel),
			zap.String("backend", p.backend),
			zap.Int("messages", messages),
			zap.Error(err))
	}
}
