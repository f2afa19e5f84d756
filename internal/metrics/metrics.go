// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/verifybot/internal/model"
	"github.com/hitoshi/verifybot/internal/validate"
)

// Collector は認証セッションのシグナルと照合の計測値をPrometheusメトリクスとして収集する。
// verification.Observerとreconcile.Recorderを実装する。
type Collector struct {
	sessionsStarted   prometheus.Counter
	admissionsRefused *prometheus.CounterVec
	inputRejected     *prometheus.CounterVec
	conflicts         prometheus.Counter
	completed         *prometheus.CounterVec
	timedOut          prometheus.Counter
	failed            *prometheus.CounterVec
	activeSessions    prometheus.Gauge
	reconcileLatency  *prometheus.HistogramVec
	sentinelIDs       prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verifybot_sessions_started_total",
			Help: "開始した認証セッションの合計数",
		}),
		admissionsRefused: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verifybot_admissions_refused_total",
			Help: "理由別の認証開始拒否数",
		}, []string{"reason"}),
		inputRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verifybot_input_rejected_total",
			Help: "理由別の入力差し戻し数",
		}, []string{"reason"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verifybot_conflicts_total",
			Help: "既存の会員データが見つかった回数",
		}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verifybot_verifications_completed_total",
			Help: "照合結果別の認証完了数",
		}, []string{"status"}),
		timedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verifybot_sessions_timed_out_total",
			Help: "タイムアウトした認証セッションの合計数",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verifybot_sessions_failed_total",
			Help: "理由別の認証セッション失敗数",
		}, []string{"reason"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "verifybot_active_sessions",
			Help: "実行中の認証セッション数",
		}),
		reconcileLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verifybot_reconcile_latency_seconds",
			Help:    "会員台帳との照合のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		sentinelIDs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verifybot_sentinel_ids_total",
			Help: "縮退値OTM-999で採番した回数",
		}),
	}

	reg.MustRegister(
		c.sessionsStarted,
		c.admissionsRefused,
		c.inputRejected,
		c.conflicts,
		c.completed,
		c.timedOut,
		c.failed,
		c.activeSessions,
		c.reconcileLatency,
		c.sentinelIDs,
	)

	return c
}

func (c *Collector) SessionStarted(model.SessionInfo) {
	c.sessionsStarted.Inc()
	c.activeSessions.Inc()
}

func (c *Collector) AdmissionRefused(_ string, reason model.RefusalReason) {
	c.admissionsRefused.WithLabelValues(string(reason)).Inc()
}

func (c *Collector) InputRejected(_ model.SessionInfo, code validate.Code) {
	c.inputRejected.WithLabelValues(string(code)).Inc()
}

func (c *Collector) ConflictDetected(model.SessionInfo, model.Record, model.Profile) {
	c.conflicts.Inc()
}

func (c *Collector) VerificationCompleted(_ model.SessionInfo, status model.ReconcileStatus, _, _ string) {
	c.completed.WithLabelValues(string(status)).Inc()
	c.activeSessions.Dec()
}

func (c *Collector) SessionTimedOut(model.SessionInfo) {
	c.timedOut.Inc()
	c.activeSessions.Dec()
}

func (c *Collector) SessionFailed(_ model.SessionInfo, reason model.FailureReason, _ error) {
	c.failed.WithLabelValues(string(reason)).Inc()
	c.activeSessions.Dec()
}

// ObserveReconcile は照合のレイテンシを記録する。
func (c *Collector) ObserveReconcile(status model.ReconcileStatus, elapsed time.Duration) {
	c.reconcileLatency.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// SentinelAllocated は縮退値での採番を記録する。
func (c *Collector) SentinelAllocated() {
	c.sentinelIDs.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
