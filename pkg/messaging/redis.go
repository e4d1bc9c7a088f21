package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisPingTimeout 建立连接时的探测超时
const redisPingTimeout = 3 * time.Second

// RedisChannel 基于Redis发布订阅的事件通道
type RedisChannel struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisChannel 创建Redis客户端并探测连通性
func NewRedisChannel(addr, password string, db int, logger *zap.Logger) (*RedisChannel, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	logger.Info("Redis连接成功", zap.String("addr", addr))
	return &RedisChannel{client: client, logger: logger}, nil
}

// Publish 发布消息到频道
func (c *RedisChannel) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("发布消息到 %s 失败: %w", channel, err)
	}
	return nil
}

// Subscribe 订阅频道直到 ctx 结束
func (c *RedisChannel) Subscribe(ctx context.Context, channels []string, handler MessageHandler) error {
	sub := c.client.Subscribe(ctx, channels...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("订阅Redis频道失败: %w", err)
	}
	c.logger.Info("已订阅Redis频道", zap.Strings("channels", channels))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("Redis订阅通道已关闭")
			}
			handler(msg.Channel, []byte(msg.Payload))
		}
	}
}

// Close 关闭客户端
func (c *RedisChannel) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("关闭Redis客户端失败: %w", err)
	}
	return nil
}
