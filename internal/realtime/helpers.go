package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	mqcontracts "clientportal/contracts/mq"
)

func SubscribeToProjects(h *Hub, cb Callback) (*Subscription, error) {
	return h.Subscribe("projects_changes", Filter{Table: "projects", Event: EventAll}, cb)
}

func SubscribeToProjectRequests(h *Hub, cb Callback) (*Subscription, error) {
	return h.Subscribe("project_requests_changes", Filter{Table: "project_requests", Event: EventAll}, cb)
}

// SubscribeToNotifications 只收发给 userID 的新通知，已读等更新不触发
func SubscribeToNotifications(h *Hub, userID uuid.UUID, cb Callback) (*Subscription, error) {
	return h.Subscribe("notifications_"+userID.String(), Filter{
		Table:  "notifications",
		Event:  string(mqcontracts.ChangeInsert),
		Filter: "recipient_id=eq." + userID.String(),
	}, cb)
}

// Debounce 连续触发只在安静 window 后执行一次 fn；stop 之后不再执行
func Debounce(window time.Duration, fn func()) (trigger func(), stop func()) {
	var (
		mu      sync.Mutex
		timer   *time.Timer
		stopped bool
	)

	trigger = func() {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(window, fn)
	}
	stop = func() {
		mu.Lock()
		defer mu.Unlock()
		stopped = true
		if timer != nil {
			timer.Stop()
		}
	}
	return trigger, stop
}
