package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/pkg/mq"
	"clientportal/pkg/util"
)

// Tables 可以订阅的表
var Tables = []string{"projects", "project_requests", "invoices", "notifications"}

// RoutingKeys <table>.* 绑定
func RoutingKeys(tables []string) []string {
	keys := make([]string, 0, len(tables))
	for _, t := range tables {
		keys = append(keys, t+".*")
	}
	return keys
}

// MQSource 每个进程一个独占队列，断开即删除
type MQSource struct {
	url      string
	tables   []string
	dedup    *util.Deduper
	instance string
	logger   *zap.Logger
}

// NewMQSource dedup 可以为 nil
func NewMQSource(url string, tables []string, dedup *util.Deduper, logger *zap.Logger) *MQSource {
	return &MQSource{
		url:      url,
		tables:   tables,
		dedup:    dedup,
		instance: uuid.NewString(),
		logger:   logger,
	}
}

func (s *MQSource) Start(ctx context.Context, emit func(*mqcontracts.ChangePayload)) error {
	consumer, err := mq.NewConsumer(s.url, "", RoutingKeys(s.tables), mq.EphemeralQueue, s.logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	consumer.SetHandler(s.handler(emit))
	return consumer.StartConsuming(ctx)
}

// handler 格式错误的消息直接确认丢弃
func (s *MQSource) handler(emit func(*mqcontracts.ChangePayload)) mq.MessageHandler {
	// 每个实例独立去重，多个 server 各自都要收到
	dedupName := "realtime:" + s.instance

	return func(ctx context.Context, data json.RawMessage) error {
		var change mqcontracts.ChangePayload
		if err := json.Unmarshal(data, &change); err != nil {
			s.logger.Warn("Dropping malformed change event", zap.Error(err))
			return nil
		}
		if change.Table == "" {
			s.logger.Warn("Dropping change event without table", zap.String("id", change.ID.String()))
			return nil
		}
		if s.dedup != nil && !s.dedup.AcquireOnce(ctx, dedupName, change.ID.String()) {
			return nil
		}
		emit(&change)
		return nil
	}
}
