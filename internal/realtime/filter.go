package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	mqcontracts "clientportal/contracts/mq"
)

// EventAll 匹配所有变更类型
const EventAll = "*"

// Filter 订阅条件，Filter 字段形如 client_id=eq.<uuid>
type Filter struct {
	Table  string
	Event  string
	Filter string
}

type rowFilter struct {
	column string
	value  string
}

func (f Filter) validate() (*rowFilter, error) {
	if f.Table == "" {
		return nil, fmt.Errorf("realtime filter: table is required")
	}
	switch strings.ToUpper(f.Event) {
	case "", EventAll, "INSERT", "UPDATE", "DELETE":
	default:
		return nil, fmt.Errorf("realtime filter: unknown event %q", f.Event)
	}
	if f.Filter == "" {
		return nil, nil
	}
	return parseRowFilter(f.Filter)
}

// parseRowFilter 只支持 eq
func parseRowFilter(expr string) (*rowFilter, error) {
	col, rest, ok := strings.Cut(expr, "=")
	if !ok || col == "" {
		return nil, fmt.Errorf("realtime filter: malformed %q", expr)
	}
	op, val, ok := strings.Cut(rest, ".")
	if !ok || op != "eq" {
		return nil, fmt.Errorf("realtime filter: unsupported operator in %q", expr)
	}
	return &rowFilter{column: col, value: val}, nil
}

func (f Filter) matchesEvent(t mqcontracts.ChangeType) bool {
	return f.Event == "" || f.Event == EventAll || strings.EqualFold(f.Event, string(t))
}

// matches DELETE 用旧行判断
func (rf *rowFilter) matches(change *mqcontracts.ChangePayload) bool {
	if rf == nil {
		return true
	}
	row := change.Record
	if change.Type == mqcontracts.ChangeDelete || len(row) == 0 {
		row = change.OldRecord
	}
	if len(row) == 0 {
		return false
	}

	dec := json.NewDecoder(bytes.NewReader(row))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return false
	}
	v, ok := fields[rf.column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == rf.value
}
