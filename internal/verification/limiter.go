package verification

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterConfig は認証開始のレート制限設定を保持する。
type LimiterConfig struct {
	Rate            rate.Limit    // 1メンバーあたりの開始回数（回/秒）
	Burst           int           // バーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultLimiterConfig はデフォルトのレート制限設定を返す。1メンバーあたり6回/分。
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		Rate:            rate.Limit(6.0 / 60.0),
		Burst:           3,
		CleanupInterval: 5 * time.Minute,
	}
}

type memberLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// StartLimiter はリアクションの連打による認証開始をメンバーごとに制限する。
type StartLimiter struct {
	config LimiterConfig

	mu       sync.RWMutex
	limiters map[string]*memberLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStartLimiter は新しいStartLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewStartLimiter(config LimiterConfig) *StartLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultLimiterConfig().CleanupInterval
	}
	l := &StartLimiter{
		config:   config,
		limiters: make(map[string]*memberLimiter),
		stopCh:   make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (l *StartLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Allow はメンバーが認証を開始してよいかを返す。
func (l *StartLimiter) Allow(memberKey string) bool {
	return l.getOrCreate(memberKey).Allow()
}

// Count は現在管理しているエントリ数を返す。
func (l *StartLimiter) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

func (l *StartLimiter) getOrCreate(memberKey string) *rate.Limiter {
	l.mu.RLock()
	ml, exists := l.limiters[memberKey]
	l.mu.RUnlock()

	if exists {
		l.mu.Lock()
		ml.lastAccess = time.Now()
		l.mu.Unlock()
		return ml.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// ダブルチェック
	if ml, exists := l.limiters[memberKey]; exists {
		ml.lastAccess = time.Now()
		return ml.limiter
	}

	limiter := rate.NewLimiter(l.config.Rate, l.config.Burst)
	l.limiters[memberKey] = &memberLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (l *StartLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスがCleanupIntervalの2倍より古いエントリを削除する。
func (l *StartLimiter) cleanup(now time.Time) {
	ttl := l.config.CleanupInterval * 2

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, ml := range l.limiters {
		if now.Sub(ml.lastAccess) > ttl {
			delete(l.limiters, key)
		}
	}
}
