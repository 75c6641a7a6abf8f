package channels

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SteamVC/SteamVC_Talk/internal/broker"
	"github.com/SteamVC/SteamVC_Talk/internal/metrics"
	"github.com/SteamVC/SteamVC_Talk/internal/service"
	"github.com/SteamVC/SteamVC_Talk/internal/session"
)

// Notification はユーザーごとの通知チャネルです
// トピックに配信されたイベントをそのまま転送するだけで状態を持ちません
type Notification struct {
	base
}

// NewNotification は新しいNotificationチャネルを作成します
func NewNotification(b *broker.Broker, m *metrics.Relay) *Notification {
	return &Notification{base: base{name: "notification", broker: b, metrics: m}}
}

// Topics は自分の通知トピックを返します
func (n *Notification) Topics(identity string) []string {
	return []string{broker.NotificationTopic(identity)}
}

func (n *Notification) Opened(*session.Session)             {}
func (n *Notification) HandleControl(*session.Session, any) {}

// HandleFrame はクライアントからのフレームを処理します（ping 以外は受け付けない）
func (n *Notification) HandleFrame(_ context.Context, s *session.Session, frame []byte) error {
	var in typeOnly
	if err := json.Unmarshal(frame, &in); err != nil {
		return n.finish(s, dropped(metrics.ReasonInvalidJSON, err))
	}
	if in.Type != TypePing {
		return n.finish(s, dropped(metrics.ReasonUnsupported, fmt.Errorf("%w: type %q", service.ErrMalformedPayload, in.Type)))
	}
	_ = s.Send(Pong{Type: TypePong})
	return nil
}
