package mq

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChangeType 行变更类型
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangePayload 表的行变更事件，由 outbox 发布到 events 交换机
// routing key: <table>.<insert|update|delete>
type ChangePayload struct {
	ID              uuid.UUID       `json:"id"`
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Type            ChangeType      `json:"type"`
	Record          json.RawMessage `json:"record,omitempty"`
	OldRecord       json.RawMessage `json:"old_record,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
	TraceID         string          `json:"trace_id,omitempty"`
}

// RoutingKey projects.insert 之类
func (p ChangePayload) RoutingKey() string {
	return RoutingKey(p.Table, p.Type)
}

func RoutingKey(table string, t ChangeType) string {
	return table + "." + strings.ToLower(string(t))
}

// ParseChangeType 大小写不敏感
func ParseChangeType(s string) (ChangeType, error) {
	switch strings.ToUpper(s) {
	case "INSERT":
		return ChangeInsert, nil
	case "UPDATE":
		return ChangeUpdate, nil
	case "DELETE":
		return ChangeDelete, nil
	default:
		return "", fmt.Errorf("unknown change type %q", s)
	}
}
