package verification

import (
	"sort"
	"sync"

	"github.com/hitoshi/verifybot/internal/model"
)

// Registry は実行中のセッションをメンバーごとに1つだけ保持する。
// 登録と解除はこの型のメソッドからのみ行う。
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// TryStart はメンバーの枠を確保する。既に実行中のセッションがある場合はfalseを返す。
func (r *Registry) TryStart(key string) bool {
	return r.admit(key, nil)
}

func (r *Registry) admit(key string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[key]; ok {
		return false
	}
	r.sessions[key] = s
	return true
}

// Release はメンバーの枠を解放する。何度呼んでもよい。
func (r *Registry) Release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
}

// Active はメンバーのセッションが実行中かどうかを返す。
func (r *Registry) Active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[key]
	return ok
}

// Len は実行中のセッション数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot は実行中セッションの状態を開始時刻順に返す。
func (r *Registry) Snapshot() []model.SessionInfo {
	r.mu.Lock()
	out := make([]model.SessionInfo, 0, len(r.sessions))
	for key, s := range r.sessions {
		if s == nil {
			out = append(out, model.SessionInfo{MemberKey: key})
			continue
		}
		out = append(out, s.Info())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].MemberKey < out[j].MemberKey
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
