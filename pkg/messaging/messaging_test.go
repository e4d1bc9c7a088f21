package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"TokenRadar/pkg/config"
	"TokenRadar/pkg/metrics"
	"TokenRadar/pkg/model"
	"TokenRadar/pkg/monitor"
)

func sampleEvent() model.ApprovalEvent {
	return model.ApprovalEvent{
		Action:       model.ActionCreateTokenWithPosition,
		TokenAddress: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		PositionInfo: model.PositionInfo{
			BuyAmountUSD:   25,
			TakeProfitPct:  100,
			StopLossPct:    30,
			EnrichedDetail: map[string]any{"twitter": "@dog"},
		},
		UserID: "user-1",
	}
}

type failingChannel struct{}

func (failingChannel) Publish(context.Context, string, []byte) error { return errors.New("broker down") }
func (failingChannel) Close() error                                  { return nil }

type blockingChannel struct{}

func (blockingChannel) Publish(ctx context.Context, _ string, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}
func (blockingChannel) Close() error { return nil }

func TestEventPublisher_LogChannel(t *testing.T) {
	ch := NewLogChannel(zap.NewNop())
	m := metrics.NewMetrics("pub_test")
	pub := NewEventPublisher(ch, PublisherOptions{Channel: "tradeExecution_createTokenWithPosition", Backend: config.BackendLog, Metrics: m})

	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))

	msgs := ch.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "tradeExecution_createTokenWithPosition", msgs[0].Channel)

	var decoded model.ApprovalEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &decoded))
	assert.Equal(t, sampleEvent(), decoded)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(config.BackendLog, "ok")))
}

func TestEventPublisher_FailureIsWrapped(t *testing.T) {
	mon := monitor.NewMonitor(nil)
	pub := NewEventPublisher(failingChannel{}, PublisherOptions{Channel: "c", Backend: "test", Monitor: mon})

	err := pub.Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPublish)

	st, ok := mon.GetStatus(ComponentEvents)
	require.True(t, ok)
	assert.Equal(t, monitor.StatusDegraded, st.Status)
}

func TestEventPublisher_Timeout(t *testing.T) {
	pub := NewEventPublisher(blockingChannel{}, PublisherOptions{Channel: "c", Timeout: 20 * time.Millisecond})

	start := time.Now()
	err := pub.Publish(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, model.ErrPublish)
	assert.Less(t, time.Since(start), time.Second)
}

// queueChannel 只入队的异步通道，投递结果由测试手动回调
type queueChannel struct {
	deliveryHook
	queued atomic.Int32
}

func (c *queueChannel) Publish(context.Context, string, []byte) error {
	c.queued.Add(1)
	return nil
}
func (c *queueChannel) Close() error { return nil }

func TestEventPublisher_AsyncResultComesFromDelivery(t *testing.T) {
	ch := &queueChannel{}
	m := metrics.NewMetrics("async_pub_test")
	mon := monitor.NewMonitor(nil)
	pub := NewEventPublisher(ch, PublisherOptions{Channel: "c", Backend: config.BackendKafka, Metrics: m, Monitor: mon})

	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, int32(1), ch.queued.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(config.BackendKafka, "queued")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(config.BackendKafka, "ok")))
	st, _ := mon.GetStatus(ComponentEvents)
	assert.Equal(t, monitor.StatusUnknown, st.Status)

	ch.notify("c", 1, errors.New("leader not available"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(config.BackendKafka, "error")))
	st, _ = mon.GetStatus(ComponentEvents)
	assert.Equal(t, monitor.StatusDegraded, st.Status)
	assert.Contains(t, st.Message, "leader not available")

	ch.notify("c", 2, nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(config.BackendKafka, "ok")))
	st, _ = mon.GetStatus(ComponentEvents)
	assert.Equal(t, monitor.StatusHealthy, st.Status)
}

func TestKafkaChannel_CompletionNotifiesPerTopic(t *testing.T) {
	ch := NewKafkaChannel([]string{"127.0.0.1:1"}, zap.NewNop())
	defer ch.Close()

	type delivery struct {
		topic string
		n     int
		err   error
	}
	var got []delivery
	ch.OnDelivery(func(topic string, n int, err error) {
		got = append(got, delivery{topic, n, err})
	})

	brokerErr := errors.New("broker unreachable")
	ch.complete([]kafka.Message{{Topic: "a"}, {Topic: "b"}, {Topic: "a"}}, brokerErr)

	assert.Equal(t, []delivery{{"a", 2, brokerErr}, {"b", 1, brokerErr}}, got)
}

func TestKafkaChannel_FailedWriteReachesMonitor(t *testing.T) {
	ch := NewKafkaChannel([]string{"127.0.0.1:1"}, zap.NewNop())
	defer ch.Close()
	mon := monitor.NewMonitor(nil)
	NewEventPublisher(ch, PublisherOptions{Channel: "c", Backend: config.BackendKafka, Monitor: mon})

	ch.complete([]kafka.Message{{Topic: "c"}}, errors.New("broker unreachable"))

	st, _ := mon.GetStatus(ComponentEvents)
	assert.Equal(t, monitor.StatusDegraded, st.Status)
}

func TestRedisChannel_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	ch, err := NewRedisChannel(mr.Addr(), "", 0, zap.NewNop())
	require.NoError(t, err)
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 16)
	go func() {
		_ = ch.Subscribe(ctx, []string{"events"}, func(channel string, data []byte) {
			received <- Message{Channel: channel, Payload: data}
		})
	}()

	require.Eventually(t, func() bool {
		if err := ch.Publish(context.Background(), "events", []byte(`{"ok":true}`)); err != nil {
			return false
		}
		select {
		case msg := <-received:
			return msg.Channel == "events" && string(msg.Payload) == `{"ok":true}`
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewRedisChannel_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisChannel(addr, "", 0, zap.NewNop())
	require.Error(t, err)
}

func TestFeedbackListener_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	ch, err := NewRedisChannel(mr.Addr(), "", 0, zap.NewNop())
	require.NoError(t, err)
	defer ch.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	m := metrics.NewMetrics("feedback_test")
	listener := NewFeedbackListener(ch, FeedbackOptions{
		Channels: []string{"tradeExecution_transactionStatusUpdate", "ws_transaction_error"},
		Respond:  true,
		Logger:   zap.New(core),
		Metrics:  m,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		listener.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mr.Publish("ws_transaction_error", `{"error":"slippage"}`)
		return logs.FilterMessage("收到回执消息").Len() > 0
	}, 2*time.Second, 20*time.Millisecond)

	mr.Publish("tradeExecution_transactionStatusUpdate", `not json`)
	require.Eventually(t, func() bool {
		return logs.FilterMessage("回执消息解析失败").Len() > 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, testutil.ToFloat64(m.FeedbackMessages.WithLabelValues("ws_transaction_error")), 1.0)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

// flakySubscriber 前 failures 次订阅直接失败，之后阻塞到 ctx 结束
type flakySubscriber struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakySubscriber) Subscribe(ctx context.Context, _ []string, _ MessageHandler) error {
	if f.calls.Add(1) <= f.failures {
		return errors.New("redis: connection refused")
	}
	<-ctx.Done()
	return nil
}

func TestFeedbackListener_RetriesUntilSubscribed(t *testing.T) {
	sub := &flakySubscriber{failures: 3}
	mon := monitor.NewMonitor(nil)
	core, logs := observer.New(zapcore.WarnLevel)
	l := NewFeedbackListener(sub, FeedbackOptions{
		Channels: []string{"ws_transaction_error"},
		RetryMin: 5 * time.Millisecond,
		RetryMax: 20 * time.Millisecond,
		Logger:   zap.New(core),
		Monitor:  mon,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sub.calls.Load() == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, logs.FilterMessage("回执订阅中断，稍后重连").Len())

	st, ok := mon.GetStatus(ComponentFeedback)
	require.True(t, ok)
	assert.Equal(t, monitor.StatusDegraded, st.Status)
	assert.Contains(t, st.Message, "connection refused")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Equal(t, int32(4), sub.calls.Load())
}

func TestFeedbackListener_StopsWhileWaitingToRetry(t *testing.T) {
	sub := &flakySubscriber{failures: 1000}
	l := NewFeedbackListener(sub, FeedbackOptions{
		Channels: []string{"ws_transaction_error"},
		RetryMin: time.Hour,
		RetryMax: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sub.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestFeedbackListener_MessageMarksHealthy(t *testing.T) {
	mon := monitor.NewMonitor(nil)
	l := NewFeedbackListener(nil, FeedbackOptions{Channels: []string{"x"}, Monitor: mon})
	mon.Report(ComponentFeedback, errors.New("down"))

	l.handle("x", []byte(`{"status":"confirmed"}`))

	st, _ := mon.GetStatus(ComponentFeedback)
	assert.Equal(t, monitor.StatusHealthy, st.Status)
}

func TestFeedbackListener_RespondDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFeedbackListener(nil, FeedbackOptions{Channels: []string{"x"}, Logger: zap.New(core)})

	l.handle("x", []byte(`{"status":"confirmed"}`))

	assert.Equal(t, 0, logs.FilterMessage("收到回执消息").Len())
	assert.Equal(t, 1, logs.FilterMessage("收到回执消息(未启用处理)").Len())
}

func TestNewEventChannel(t *testing.T) {
	cfg := config.Default()

	cfg.Events.Backend = config.BackendLog
	ch, err := NewEventChannel(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogChannel{}, ch)

	mr := miniredis.RunT(t)
	cfg.Events.Backend = config.BackendRedis
	cfg.Redis.Addr = mr.Addr()
	ch, err = NewEventChannel(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &RedisChannel{}, ch)
	require.NoError(t, ch.Close())

	cfg.Events.Backend = config.BackendKafka
	ch, err = NewEventChannel(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &KafkaChannel{}, ch)
	require.NoError(t, ch.Close())

	cfg.Events.Backend = "pigeon"
	_, err = NewEventChannel(cfg, zap.NewNop())
	assert.Error(t, err)
}
