package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// 变更事件走 ExchangeName，处理失败的消息停到 DLQExchangeName
const (
	ExchangeName    = "events"
	DLQExchangeName = "events.dlq"
	dlqSuffix       = ".dlq"
)

// exchange 拓扑：两个都是持久化 topic 交换机
var exchanges = []string{ExchangeName, DLQExchangeName}

// dial 建连、开 channel 并声明交换机；失败时已打开的资源都会关掉
func dial(url string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	for _, name := range exchanges {
		if err := ch.ExchangeDeclare(name, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return conn, ch, nil
}

// DLQName 是某个路由键的死信队列名，例如 projects.update.dlq
func DLQName(routingKey string) string {
	return routingKey + dlqSuffix
}

// DeclareDLQQueues 为每个路由键声明持久化死信队列并绑定到 DLQ 交换机
func DeclareDLQQueues(ch *amqp091.Channel, routingKeys ...string) error {
	for _, key := range routingKeys {
		q, err := ch.QueueDeclare(DLQName(key), true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("declare dlq %s: %w", DLQName(key), err)
		}
		if err := ch.QueueBind(q.Name, key, DLQExchangeName, false, nil); err != nil {
			return fmt.Errorf("bind dlq %s: %w", q.Name, err)
		}
	}
	return nil
}

// PublishToDLQ 把处理失败的消息原样转到死信交换机，附带失败原因
func (p *Publisher) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error {
	return p.PublishRaw(ctx, DLQExchangeName, routingKey, payload, amqp091.Table{
		"x-original-error":       originalError,
		"x-original-routing-key": routingKey,
		"x-failed-at":            time.Now().UTC().Format(time.RFC3339),
	})
}
