package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"TokenRadar/pkg/metrics"
	"TokenRadar/pkg/monitor"
)

// ComponentFeedback 健康登记表中的组件名
const ComponentFeedback = "feedback"

// errSubscriptionEnded 订阅在 ctx 结束前返回
var errSubscriptionEnded = errors.New("回执订阅意外结束")

// FeedbackOptions 回执监听配置
type FeedbackOptions struct {
	Channels []string
	// Respond 为 false 时只在调试级别记录
	Respond bool

	RetryMin time.Duration
	RetryMax time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Monitor *monitor.Monitor
}

// FeedbackListener 订阅执行系统的回执频道
type FeedbackListener struct {
	sub  Subscriber
	opts FeedbackOptions
}

// NewFeedbackListener 创建回执监听器
func NewFeedbackListener(sub Subscriber, opts FeedbackOptions) *FeedbackListener {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RetryMin <= 0 {
		opts.RetryMin = time.Second
	}
	if opts.RetryMax < opts.RetryMin {
		opts.RetryMax = opts.RetryMin
	}
	opts.Monitor.RegisterComponent(ComponentFeedback)
	return &FeedbackListener{sub: sub, opts: opts}
}

// Run 阻塞直到 ctx 结束。订阅失败或中断时按退避间隔重连，不向调用方返回错误
func (l *FeedbackListener) Run(ctx context.Context) {
	if len(l.opts.Channels) == 0 {
		return
	}

	backoff := l.opts.RetryMin
	for {
		started := time.Now()
		err := l.sub.Subscribe(ctx, l.opts.Channels, l.handle)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errSubscriptionEnded
		}
		// 订阅曾稳定运行过一段时间，退避从头开始
		if time.Since(started) > l.opts.RetryMax {
			backoff = l.opts.RetryMin
		}

		l.opts.Monitor.Report(ComponentFeedback, err)
		l.opts.Logger.Warn("回执订阅中断，稍后重连",
			zap.Strings("channels", l.opts.Channels),
			zap.Duration("retry_in", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > l.opts.RetryMax {
			backoff = l.opts.RetryMax
		}
	}
}

func (l *FeedbackListener) handle(channel string, data []byte) {
	l.opts.Metrics.ObserveFeedback(channel)
	l.opts.Monitor.Report(ComponentFeedback, nil)

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		l.opts.Logger.Warn("回执消息解析失败",
			zap.String("channel", channel),
			zap.ByteString("payload", data),
			zap.Error(err))
		return
	}

	if !l.opts.Respond {
		l.opts.Logger.Debug("收到回执消息(未启用处理)", zap.String("channel", channel))
		return
	}
	l.opts.Logger.Info("收到回执消息", zap.String("channel", channel), zap.Any("message", body))
}
