package messaging

import (
	"context"
	"fmt"

	"github.com/nats-io/stan.go"
	"go.uber.org/zap"
)

// STANChannel 基于NATS Streaming的事件通道，异步发布不等待确认，确认结果通过 OnDelivery 回调返回
type STANChannel struct {
	deliveryHook

	conn   stan.Conn
	logger *zap.Logger
}

// NewSTANChannel 连接NATS Streaming集群
func NewSTANChannel(natsURL, clusterID, clientID string, logger *zap.Logger) (*STANChannel, error) {
	conn, err := stan.Connect(
		clusterID,
		clientID,
		stan.NatsURL(natsURL),
		stan.SetConnectionLostHandler(func(_ stan.Conn, err error) {
			logger.Error("NATS Streaming连接丢失", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS Streaming失败: %w", err)
	}
	return &STANChannel{conn: conn, logger: logger}, nil
}

// Publish 异步发布
func (c *STANChannel) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.conn.PublishAsync(subject, payload, func(guid string, err error) {
		c.ack(subject, guid, err)
	})
	if err != nil {
		return fmt.Errorf("发布消息到 %s 失败: %w", subject, err)
	}
	return nil
}

func (c *STANChannel) ack(subject, guid string, err error) {
	if err != nil {
		c.logger.Warn("NATS Streaming确认失败",
			zap.String("subject", subject),
			zap.String("guid", guid),
			zap.Error(err))
	}
	c.notify(subject, 1, err)
}

// Close 关闭连接
func (c *STANChannel) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("关闭NATS Streaming连接失败: %w", err)
	}
	return nil
}
