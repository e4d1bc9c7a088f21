package messaging

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"TokenRadar/pkg/config"
)

// MessageHandler 订阅消息处理函数
type MessageHandler func(channel string, data []byte)

// EventChannel 事件通道，发布为尽力而为语义
type EventChannel interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}

// Subscriber 支持订阅的通道，Subscribe 阻塞直到 ctx 结束
type Subscriber interface {
	Subscribe(ctx context.Context, channels []string, handler MessageHandler) error
}

// DeliveryFunc 异步投递完成回调，messages 为本次确认的消息数
type DeliveryFunc func(channel string, messages int, err error)

// AsyncChannel 异步投递的通道，Publish 返回 nil 只表示消息已入队
type AsyncChannel interface {
	OnDelivery(fn DeliveryFunc)
}

// deliveryHook 保存投递回调，供异步通道嵌入
type deliveryHook struct {
	mu sync.RWMutex
	fn DeliveryFunc
}

// OnDelivery 设置投递回调
func (h *deliveryHook) OnDelivery(fn DeliveryFunc) {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
}

func (h *deliveryHook) notify(channel string, messages int, err error) {
	h.mu.RLock()
	fn := h.fn
	h.mu.RUnlock()
	if fn != nil {
		fn(channel, messages, err)
	}
}

// NewEventChannel 按配置创建事件通道
func NewEventChannel(cfg *config.Config, logger *zap.Logger) (EventChannel, error) {
	switch cfg.Events.Backend {
	case config.BackendNATS:
		ch, err := NewNATSChannel(cfg.NATS.URL, logger)
		if err != nil {
			return nil, err
		}
		return ch, nil
	case config.BackendSTAN:
		ch, err := NewSTANChannel(cfg.NATS.URL, cfg.NATS.ClusterID, cfg.NATS.ClientID, logger)
		if err != nil {
			return nil, err
		}
		return ch, nil
	case config.BackendRedis:
		ch, err := NewRedisChannel(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			return nil, err
		}
		return ch, nil
	case config.BackendKafka:
		return NewKafkaChannel(cfg.Kafka.Brokers, logger), nil
	case config.BackendLog:
		return NewLogChannel(logger), nil
	default:
		return nil, fmt.Errorf("未知的事件通道类型: %s", cfg.Events.Backend)
	}
}
