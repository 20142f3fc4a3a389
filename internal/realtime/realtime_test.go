package realtime

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "clientportal/contracts/mq"
	"clientportal/pkg/util"
)

var (
	userID  = uuid.MustParse("5b1c2d3e-4f50-4a6b-8c7d-9e0f1a2b3c4d")
	otherID = uuid.MustParse("9f8e7d6c-5b4a-4321-8fed-cba987654321")
)

func change(table string, t mqcontracts.ChangeType, record string) *mqcontracts.ChangePayload {
	c := &mqcontracts.ChangePayload{
		ID:     uuid.New(),
		Schema: "public",
		Table:  table,
		Type:   t,
	}
	if t == mqcontracts.ChangeDelete {
		c.OldRecord = json.RawMessage(record)
	} else {
		c.Record = json.RawMessage(record)
	}
	return c
}

func TestFilter_Validate(t *testing.T) {
	_, err := Filter{}.validate()
	assert.Error(t, err)

	_, err = Filter{Table: "projects", Event: "TRUNCATE"}.validate()
	assert.Error(t, err)

	_, err = Filter{Table: "projects", Filter: "client_id=gt.5"}.validate()
	assert.Error(t, err)

	_, err = Filter{Table: "projects", Filter: "client_id"}.validate()
	assert.Error(t, err)

	rf, err := Filter{Table: "projects", Event: "update", Filter: "client_id=eq.abc"}.validate()
	require.NoError(t, err)
	assert.Equal(t, &rowFilter{column: "client_id", value: "abc"}, rf)
}

func TestHub_DispatchMatchesTableEventAndRow(t *testing.T) {
	h := NewHub(zap.NewNop())

	var all, mine, updates int
	_, err := SubscribeToProjects(h, func(*mqcontracts.ChangePayload) { all++ })
	require.NoError(t, err)
	_, err = SubscribeToNotifications(h, userID, func(*mqcontracts.ChangePayload) { mine++ })
	require.NoError(t, err)
	_, err = h.Subscribe("updates", Filter{Table: "projects", Event: "UPDATE"}, func(*mqcontracts.ChangePayload) { updates++ })
	require.NoError(t, err)

	assert.Equal(t, 2, h.Dispatch(change("projects", mqcontracts.ChangeUpdate, `{"id":"p1"}`)))
	assert.Equal(t, 1, h.Dispatch(change("projects", mqcontracts.ChangeInsert, `{"id":"p2"}`)))
	assert.Equal(t, 1, h.Dispatch(change("notifications", mqcontracts.ChangeInsert, `{"recipient_id":"`+userID.String()+`"}`)))
	assert.Equal(t, 0, h.Dispatch(change("notifications", mqcontracts.ChangeInsert, `{"recipient_id":"`+otherID.String()+`"}`)))
	assert.Equal(t, 0, h.Dispatch(change("notifications", mqcontracts.ChangeUpdate, `{"recipient_id":"`+userID.String()+`","is_read":true}`)))
	assert.Equal(t, 0, h.Dispatch(change("notifications", mqcontracts.ChangeDelete, `{"recipient_id":"`+userID.String()+`"}`)))
	assert.Equal(t, 0, h.Dispatch(change("invoices", mqcontracts.ChangeInsert, `{}`)))

	assert.Equal(t, 2, all)
	assert.Equal(t, 1, mine)
	assert.Equal(t, 1, updates)
}

func TestHub_RowFilterComparesNumbers(t *testing.T) {
	h := NewHub(zap.NewNop())
	hits := 0
	_, err := h.Subscribe("progress", Filter{Table: "projects", Filter: "progress_percentage=eq.100"}, func(*mqcontracts.ChangePayload) { hits++ })
	require.NoError(t, err)

	h.Dispatch(change("projects", mqcontracts.ChangeUpdate, `{"progress_percentage":100}`))
	h.Dispatch(change("projects", mqcontracts.ChangeUpdate, `{"progress_percentage":99}`))
	h.Dispatch(change("projects", mqcontracts.ChangeUpdate, `not json`))
	assert.Equal(t, 1, hits)
}

func TestSubscription_UnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub(zap.NewNop())
	hits := 0
	sub, err := SubscribeToProjectRequests(h, func(*mqcontracts.ChangePayload) { hits++ })
	require.NoError(t, err)
	assert.Equal(t, 1, h.Len())

	h.Dispatch(change("project_requests", mqcontracts.ChangeInsert, `{}`))
	sub.Unsubscribe()
	sub.Unsubscribe()
	h.Dispatch(change("project_requests", mqcontracts.ChangeInsert, `{}`))

	assert.Equal(t, 1, hits)
	assert.Equal(t, 0, h.Len())
}

func TestHub_CallbackPanicDoesNotStopOthers(t *testing.T) {
	h := NewHub(zap.NewNop())
	hits := 0
	_, err := h.Subscribe("bad", Filter{Table: "projects"}, func(*mqcontracts.ChangePayload) { panic("boom") })
	require.NoError(t, err)
	_, err = h.Subscribe("good", Filter{Table: "projects"}, func(*mqcontracts.ChangePayload) { hits++ })
	require.NoError(t, err)

	assert.Equal(t, 2, h.Dispatch(change("projects", mqcontracts.ChangeInsert, `{}`)))
	assert.Equal(t, 1, hits)
}

type sliceSource []*mqcontracts.ChangePayload

func (s sliceSource) Start(ctx context.Context, emit func(*mqcontracts.ChangePayload)) error {
	for _, c := range s {
		emit(c)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHub_RunPumpsSource(t *testing.T) {
	h := NewHub(zap.NewNop())
	var hits atomic.Int32
	_, err := SubscribeToProjects(h, func(*mqcontracts.ChangePayload) { hits.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.Run(ctx, sliceSource{
			change("projects", mqcontracts.ChangeInsert, `{}`),
			change("projects", mqcontracts.ChangeUpdate, `{}`),
		})
	}()

	assert.Eventually(t, func() bool { return hits.Load() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestMQSource_HandlerDropsDuplicatesAndGarbage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	src := NewMQSource("amqp://unused", Tables, util.NewDeduper(rdb, time.Minute, nil), zap.NewNop())

	var got []*mqcontracts.ChangePayload
	handle := src.handler(func(c *mqcontracts.ChangePayload) { got = append(got, c) })

	c := change("projects", mqcontracts.ChangeInsert, `{"id":"p1"}`)
	body, err := json.Marshal(c)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, handle(ctx, body))
	require.NoError(t, handle(ctx, body))
	require.NoError(t, handle(ctx, []byte(`{broken`)))
	require.NoError(t, handle(ctx, []byte(`{"id":"`+uuid.NewString()+`"}`)))

	require.Len(t, got, 1)
	assert.Equal(t, c.ID, got[0].ID)
	assert.JSONEq(t, `{"id":"p1"}`, string(got[0].Record))
}

func TestRoutingKeys(t *testing.T) {
	assert.Equal(t, []string{"projects.*", "notifications.*"}, RoutingKeys([]string{"projects", "notifications"}))
}

func TestDebounce(t *testing.T) {
	var calls atomic.Int32
	trigger, stop := Debounce(30*time.Millisecond, func() { calls.Add(1) })
	defer stop()

	for i := 0; i < 5; i++ {
		trigger()
	}
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return calls.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)

	trigger()
	stop()
	trigger()
	assert.Never(t, func() bool { return calls.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}
