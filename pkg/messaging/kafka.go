package messaging

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaChannel 基于Kafka的事件通道，频道名作为主题。写入结果通过 OnDelivery 回调返回
type KafkaChannel struct {
	deliveryHook

	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaChannel 创建异步写入的Kafka通道
func NewKafkaChannel(brokers []string, logger *zap.Logger) *KafkaChannel {
	c := &KafkaChannel{logger: logger}
	c.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             c.complete,
	}
	return c
}

// complete 写入批次完成，按主题通知投递结果
func (c *KafkaChannel) complete(messages []kafka.Message, err error) {
	if err != nil {
		c.logger.Warn("Kafka异步写入失败", zap.Int("messages", len(messages)), zap.Error(err))
	}
	counts := make(map[string]int)
	var topics []string
	for _, m := range messages {
		if counts[m.Topic] == 0 {
			topics = append(topics, m.Topic)
		}
		counts[m.Topic]++
	}
	for _, topic := range topics {
		c.notify(topic, counts[topic], err)
	}
}

// Publish 写入消息，Async 模式下不等待broker确认
func (c *KafkaChannel) Publish(ctx context.Context, topic string, payload []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Value: payload,
	}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka写入失败: %w", err)
	}
	return nil
}

// Close 关闭写入器
func (c *KafkaChannel) Close() error {
	return c.writer.Close()
}
