package channels

import (
	"github.com/SteamVC/SteamVC_Talk/internal/broker"
	"github.com/SteamVC/SteamVC_Talk/internal/metrics"
	"github.com/SteamVC/SteamVC_Talk/internal/session"
)

// Status は受信ペイロード1件の処理結果です
type Status int

const (
	Delivered Status = iota // 中継済み
	Dropped                 // 破棄（接続は維持）
	Degraded                // 保存に失敗したが中継は実施
	Rejected                // 接続を閉じる
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Dropped:
		return "dropped"
	case Degraded:
		return "degraded"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Outcome は受信ペイロード1件の処理結果と理由です
type Outcome struct {
	Status Status
	Reason string // metrics.Reason* のいずれか
	Err    error
}

func delivered() Outcome { return Outcome{Status: Delivered} }

func dropped(reason string, err error) Outcome {
	return Outcome{Status: Dropped, Reason: reason, Err: err}
}

func degraded(reason string, err error) Outcome {
	return Outcome{Status: Degraded, Reason: reason, Err: err}
}

func rejected(reason string, err error) Outcome {
	return Outcome{Status: Rejected, Reason: reason, Err: err}
}

// base は各チャネルで共通の依存です
type base struct {
	name    string
	broker  *broker.Broker
	metrics *metrics.Relay
}

func (b base) Name() string { return b.name }

// finish は処理結果を記録し、接続を閉じる必要がある場合だけエラーを返します
func (b base) finish(s *session.Session, o Outcome) error {
	switch o.Status {
	case Dropped:
		b.metrics.Drop(b.name, o.Reason)
		log.Debugw("payload dropped", "channel", b.name, "identity", s.Identity(), "reason", o.Reason, "error", o.Err)
	case Degraded:
		b.metrics.Drop(b.name, o.Reason)
		log.Errorw("relayed without persisting", "channel", b.name, "identity", s.Identity(), "error", o.Err)
	case Rejected:
		b.metrics.Drop(b.name, o.Reason)
		return o.Err
	}
	return nil
}
