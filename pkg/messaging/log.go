package messaging

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogChannel 只写日志的事件通道，用于本地调试与试运行
type LogChannel struct {
	logger *zap.Logger

	mu       sync.Mutex
	messages []Message
}

// Message 通道中记录的一条消息
type Message struct {
	Channel string
	Payload []byte
}

// NewLogChannel 创建日志通道
func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Publish 记录消息
func (c *LogChannel) Publish(_ context.Context, channel string, payload []byte) error {
	c.mu.Lock()
	c.messages = append(c.messages, Message{Channel: channel, Payload: payload})
	c.mu.Unlock()

	c.logger.Info("事件(仅日志)", zap.String("channel", channel), zap.ByteString("payload", payload))
	return nil
}

// Messages 返回已记录的消息
func (c *LogChannel) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Close 无操作
func (c *LogChannel) Close() error {
	return nil
}
