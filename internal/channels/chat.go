package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SteamVC/SteamVC_Talk/internal/broker"
	"github.com/SteamVC/SteamVC_Talk/internal/metrics"
	"github.com/SteamVC/SteamVC_Talk/internal/models"
	"github.com/SteamVC/SteamVC_Talk/internal/service"
	"github.com/SteamVC/SteamVC_Talk/internal/session"
)

// Chat は2者間チャットのチャネルです
type Chat struct {
	base
	store Storage
	now   func() time.Time
}

// NewChat は新しいChatチャネルを作成します
func NewChat(b *broker.Broker, store Storage, m *metrics.Relay) *Chat {
	return &Chat{
		base:  base{name: "chat", broker: b, metrics: m},
		store: store,
		now:   time.Now,
	}
}

// Topics は2者のチャットトピックを返します
func (c *Chat) Topics(identity, peer string) []string {
	return []string{broker.ChatTopic(identity, peer)}
}

func (c *Chat) Opened(*session.Session)             {}
func (c *Chat) HandleControl(*session.Session, any) {}

// HandleFrame はチャットメッセージを1件処理します
func (c *Chat) HandleFrame(ctx context.Context, s *session.Session, frame []byte) error {
	return c.finish(s, c.handle(ctx, s, frame))
}

// handle の処理の流れ:
// 1. 送信者が接続のアイデンティティと一致するか確認（不一致なら接続を閉じる）
// 2. 本文か添付ファイルがあれば保存（失敗しても中継は続ける）
// 3. チャットトピックの両者に配信
// 4. 相手の通知トピックにプレビューを配信
func (c *Chat) handle(ctx context.Context, s *session.Session, frame []byte) Outcome {
	var in ChatInbound
	if err := json.Unmarshal(frame, &in); err != nil {
		return dropped(metrics.ReasonInvalidJSON, err)
	}
	switch in.Type {
	case TypePing:
		_ = s.Send(Pong{Type: TypePong})
		return delivered()
	case "", TypeChatMessage:
	default:
		return dropped(metrics.ReasonUnknownType, fmt.Errorf("%w: type %q", service.ErrMalformedPayload, in.Type))
	}

	identity, peer := s.Identity(), s.Peer()
	if in.SenderIdentity != identity {
		return rejected(metrics.ReasonIdentityMismatch,
			fmt.Errorf("%w: session %q, payload %q", service.ErrIdentityMismatch, identity, in.SenderIdentity))
	}
	if err := validate.Struct(in); err != nil {
		return dropped(metrics.ReasonInvalidField, fmt.Errorf("%w: %v", service.ErrMalformedPayload, err))
	}

	file := models.NewFileRef(in.FileURL, in.FileName)
	// 本文もファイルもないメッセージは保存も中継もせず破棄する（常に中継する挙動とは異なる）
	if in.Message == "" && file == nil {
		return dropped(metrics.ReasonEmptyMessage, service.ErrEmptyMessage)
	}

	outcome := delivered()
	sentAt := c.now()
	msg, err := c.store.CreateMessage(ctx, identity, peer, in.Message, file)
	if err != nil {
		outcome = degraded(metrics.ReasonStorageFailed, err)
	} else {
		sentAt = msg.Timestamp
	}

	out := ChatOutbound{
		Type:           TypeChatMessage,
		Message:        in.Message,
		SenderIdentity: identity,
	}
	if file != nil {
		out.FileURL, out.FileName = file.URL, file.Name
	}
	c.broker.Publish(broker.ChatTopic(identity, peer), broker.Envelope{Sender: identity, Payload: mustEncode(out)})

	c.broker.Publish(broker.NotificationTopic(peer), broker.Envelope{
		Sender: identity,
		Payload: mustEncode(PreviewEvent{
			Type:           TypeNotify,
			SenderIdentity: identity,
			Preview:        Preview(in.Message),
			Timestamp:      PreviewTime(sentAt),
		}),
	})

	c.metrics.Relay(c.name, TypeChatMessage)
	return outcome
}
