package messaging

import (
	"context"
	"sync"
	"time"
)

// EventKind は受信イベントの種類。
type EventKind int

const (
	EventMessage EventKind = iota + 1
	EventReaction
)

// Event はトランスポートから受け取ったメッセージまたはリアクション。
type Event struct {
	Kind      EventKind
	UserID    string
	ChannelID string
	MessageID string
	Content   string
	Emoji     string
}

// Hub は受信イベントを待機中のセッションへ配送する。
// 待機者は条件関数で登録し、最初に一致した1件だけを受け取る。
type Hub struct {
	mu      sync.Mutex
	nextID  uint64
	waiters map[uint64]*waiter
}

type waiter struct {
	match func(Event) bool
	ch    chan Event
}

// NewHub はHubを生成する。
func NewHub() *Hub {
	return &Hub{waiters: make(map[uint64]*waiter)}
}

// Wait はmatchに一致するイベントをtimeoutまで待つ。
// 戻る時点で待機者の登録は必ず解除される。
func (h *Hub) Wait(ctx context.Context, timeout time.Duration, match func(Event) bool) (Event, error) {
	id, w := h.register(match)
	defer h.unregister(id)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-w.ch:
		return ev, nil
	case <-timer.C:
		return Event{}, ErrTimeout
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Dispatch はイベントを一致する待機者に配送し、配送した数を返す。
// 配送を受けた待機者は登録を解除される。
func (h *Hub) Dispatch(ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for id, w := range h.waiters {
		if !w.match(ev) {
			continue
		}
		w.ch <- ev // バッファ1。登録解除と同時に行うため詰まらない
		delete(h.waiters, id)
		delivered++
	}
	return delivered
}

// Pending は待機中の登録数を返す。
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters)
}

func (h *Hub) register(match func(Event) bool) (uint64, *waiter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	w := &waiter{match: match, ch: make(chan Event, 1)}
	h.waiters[h.nextID] = w
	return h.nextID, w
}

func (h *Hub) unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.waiters, id)
}

// MessageFrom はメンバーが指定チャンネルに送ったテキストに一致する条件を返す。
func MessageFrom(userID, channelID string) func(Event) bool {
	return func(ev Event) bool {
		return ev.Kind == EventMessage && ev.UserID == userID && ev.ChannelID == channelID
	}
}

// ReactionOn はメンバーが指定メッセージに付けたリアクションのうち、
// choicesのいずれかの絵文字に一致する条件を返す。
func ReactionOn(userID, messageID string, choices []Choice) func(Event) bool {
	return func(ev Event) bool {
		if ev.Kind != EventReaction || ev.UserID != userID || ev.MessageID != messageID {
			return false
		}
		for _, c := range choices {
			if c.Emoji == ev.Emoji {
				return true
			}
		}
		return false
	}
}
