// Package metrics はリレーの配信・破棄件数をPrometheusで公開します
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relay"

// 破棄理由
const (
	ReasonInvalidJSON      = "invalid_json"
	ReasonMissingField     = "missing_field"
	ReasonInvalidField     = "invalid_field"
	ReasonEmptyMessage     = "empty_message"
	ReasonUnknownType      = "unknown_type"
	ReasonUnsupported      = "unsupported"
	ReasonQueueFull        = "queue_full"
	ReasonStorageFailed    = "storage_failed"
	ReasonIdentityMismatch = "identity_mismatch"
	ReasonCallClosed       = "call_closed"
)

// Relay はリレー全体のメトリクスをまとめます
type Relay struct {
	Dropped  *prometheus.CounterVec // channel, reason
	Relayed  *prometheus.CounterVec // channel, type
	Sessions *prometheus.GaugeVec   // channel
	Resent   prometheus.Counter     // 再参加時に再送したオファー数
}

// New はメトリクスを作成し、reg が nil でなければ登録します
func New(reg prometheus.Registerer) *Relay {
	f := promauto.With(reg)
	return &Relay{
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Inbound payloads or outbound events dropped, by channel and reason.",
		}, []string{"channel", "reason"}),
		Relayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_total",
			Help:      "Inbound payloads relayed through the broker, by channel and type.",
		}, []string{"channel", "type"}),
		Sessions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Open sessions by channel.",
		}, []string{"channel"}),
		Resent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offers_resent_total",
			Help:      "Cached offers resent to a rejoining peer.",
		}),
	}
}

// Drop は破棄を1件記録します
func (r *Relay) Drop(channel, reason string) {
	if r == nil {
		return
	}
	r.Dropped.WithLabelValues(channel, reason).Inc()
}

// Relay は中継を1件記録します
func (r *Relay) Relay(channel, typ string) {
	if r == nil {
		return
	}
	r.Relayed.WithLabelValues(channel, typ).Inc()
}

// SessionOpened はオープン中のセッション数を1増やします
func (r *Relay) SessionOpened(channel string) {
	if r == nil {
		return
	}
	r.Sessions.WithLabelValues(channel).Inc()
}

// SessionClosed はオープン中のセッション数を1減らします
func (r *Relay) SessionClosed(channel string) {
	if r == nil {
		return
	}
	r.Sessions.WithLabelValues(channel).Dec()
}

// OfferResent は再送したオファーを1件記録します
func (r *Relay) OfferResent() {
	if r == nil {
		return
	}
	r.Resent.Inc()
}
