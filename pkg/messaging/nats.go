package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSChannel 基于NATS核心发布订阅的事件通道
type NATSChannel struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNATSChannel 连接NATS，断线后无限重连
func NewNATSChannel(natsURL string, logger *zap.Logger) (*NATSChannel, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("token-radar"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS连接断开", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS重新连接成功", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS失败: %w", err)
	}

	return &NATSChannel{conn: nc, logger: logger}, nil
}

// Publish 发布消息到主题，不等待确认
func (c *NATSChannel) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("发布消息到 %s 失败: %w", subject, err)
	}
	return nil
}

// Subscribe 订阅多个主题直到 ctx 结束
func (c *NATSChannel) Subscribe(ctx context.Context, subjects []string, handler MessageHandler) error {
	subs := make([]*nats.Subscription, 0, len(subjects))
	defer func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}()

	for _, subject := range subjects {
		sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
			handler(msg.Subject, msg.Data)
		})
		if err != nil {
			return fmt.Errorf("订阅主题 %s 失败: %w", subject, err)
		}
		subs = append(subs, sub)
	}

	c.logger.Info("已订阅NATS主题", zap.Strings("subjects", subjects))
	<-ctx.Done()
	return nil
}

// IsConnected 检查连接状态
func (c *NATSChannel) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close 关闭连接，先刷出缓冲区中的消息
func (c *NATSChannel) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return fmt.Errorf("关闭NATS连接失败: %w", err)
	}
	return nil
}
