package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/SteamVC/SteamVC_Talk/internal/broker"
	"github.com/SteamVC/SteamVC_Talk/internal/metrics"
	"github.com/SteamVC/SteamVC_Talk/internal/service"
	"github.com/SteamVC/SteamVC_Talk/internal/session"
	"github.com/google/uuid"
)

// requiredSignalField はシグナリングのタイプごとの必須フィールドです
var requiredSignalField = map[string]string{
	TypeOffer:        "offer",
	TypeAnswer:       "answer",
	TypeICECandidate: "candidate",
	TypeCallEnded:    "",
}

// callState は1つの通話トピックの状態です
// オファー受信で設定し、call-ended またはトピックが空になった時点で破棄します
type callState struct {
	mu        sync.Mutex
	lastOffer json.RawMessage     // 直近のオファー（なければ nil）
	initiator string              // オファーを送ったユーザー（なければ空）
	claimed   map[string]struct{} // 応答済みのプローブID
}

func newCallState() *callState {
	return &callState{claimed: make(map[string]struct{})}
}

func (c *callState) setOffer(offer json.RawMessage, initiator string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastOffer = append(json.RawMessage(nil), offer...)
	c.initiator = initiator
	c.claimed = make(map[string]struct{})
}

func (c *callState) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastOffer = nil
	c.initiator = ""
	c.claimed = make(map[string]struct{})
}

// snapshot は現在のオファーと発信者を返します
func (c *callState) snapshot() (json.RawMessage, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOffer, c.initiator
}

// claim はプローブに応答すべきかを判定し、応答する場合はオファーを返します
// 同じプローブIDに対して true を返すのは1回だけです
func (c *callState) claim(p Probe, responder string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if responder == p.RejoiningIdentity || responder != c.initiator || len(c.lastOffer) == 0 {
		return nil, false
	}
	if _, done := c.claimed[p.ID]; done {
		return nil, false
	}
	c.claimed[p.ID] = struct{}{}
	return c.lastOffer, true
}

// Signaling は音声通話のシグナリングを中継するチャネルです
// 通話状態はトピックごとに保持し、永続化しません
type Signaling struct {
	base
	mu    sync.Mutex
	calls map[string]*callState // トピック名をキーとした通話状態
}

// NewSignaling は新しいSignalingチャネルを作成し、空トピックのフックを登録します
func NewSignaling(b *broker.Broker, m *metrics.Relay) *Signaling {
	g := &Signaling{
		base:  base{name: "signaling", broker: b, metrics: m},
		calls: make(map[string]*callState),
	}
	b.OnEmpty(g.forget)
	return g
}

// Topics は2者の通話トピックを返します
func (g *Signaling) Topics(identity, peer string) []string {
	return []string{broker.VoiceTopic(identity, peer)}
}

// forget はトピックが空になったときに通話状態を破棄します
// ブローカーのロック内から呼ばれます
func (g *Signaling) forget(topic string) {
	if !broker.IsVoiceTopic(topic) {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.calls[topic]; ok {
		delete(g.calls, topic)
		log.Debugw("call state dropped", "topic", topic)
	}
}

func (g *Signaling) state(topic string) *callState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.calls[topic]
	if !ok {
		st = newCallState()
		g.calls[topic] = st
	}
	return st
}

func (g *Signaling) lookup(topic string) *callState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[topic]
}

// Opened は参加直後に他のセッションへ check_active_call のプローブを送ります
// 進行中の通話があれば、発信者のセッションが1回だけオファーを再送します
func (g *Signaling) Opened(s *session.Session) {
	topic := broker.VoiceTopic(s.Identity(), s.Peer())
	g.state(topic)

	probe := Probe{
		ID:                uuid.NewString(),
		Topic:             topic,
		RejoiningIdentity: s.Identity(),
		RejoiningSession:  s.ID(),
	}
	n := g.broker.Publish(topic, broker.Envelope{Sender: s.Identity(), Control: probe}, broker.ExcludeSession(s.ID()))
	log.Debugw("check_active_call", "topic", topic, "identity", s.Identity(), "probed", n)
}

// HandleControl はプローブを受け取ったセッション側で再送を判定します
func (g *Signaling) HandleControl(s *session.Session, ctl any) {
	probe, ok := ctl.(Probe)
	if !ok {
		return
	}
	st := g.lookup(probe.Topic)
	if st == nil {
		return
	}
	offer, ok := st.claim(probe, s.Identity())
	if !ok {
		return
	}

	env := broker.Envelope{Sender: s.Identity(), Payload: mustEncode(OfferResend{Type: TypeOffer, Offer: offer})}
	if g.broker.SendTo(probe.Topic, probe.RejoiningSession, env) {
		g.metrics.OfferResent()
		log.Infow("resent last offer", "topic", probe.Topic, "from", s.Identity(), "to", probe.RejoiningIdentity)
	}
}

// HandleFrame はシグナリングメッセージを1件処理します
func (g *Signaling) HandleFrame(_ context.Context, s *session.Session, frame []byte) error {
	return g.finish(s, g.handle(s, frame))
}

// handle の処理の流れ:
// 1. type ごとの必須フィールドを確認（不足なら破棄）
// 2. クライアントが付けた送信者フィールドを取り除く
// 3. offer なら通話状態を更新、call-ended なら破棄
// 4. 自分以外の参加者へ中継し、相手の通知トピックに着信・不在着信を配信
func (g *Signaling) handle(s *session.Session, frame []byte) Outcome {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(frame, &data); err != nil {
		return dropped(metrics.ReasonInvalidJSON, err)
	}
	var typ string
	if raw, ok := data["type"]; !ok || json.Unmarshal(raw, &typ) != nil || typ == "" {
		return dropped(metrics.ReasonMissingField, fmt.Errorf("%w: type", service.ErrMalformedPayload))
	}
	if typ == TypePing {
		_ = s.Send(Pong{Type: TypePong})
		return delivered()
	}

	field, known := requiredSignalField[typ]
	if !known {
		return dropped(metrics.ReasonUnknownType, fmt.Errorf("%w: type %q", service.ErrMalformedPayload, typ))
	}
	if field != "" && isEmptyJSON(data[field]) {
		return dropped(metrics.ReasonMissingField, fmt.Errorf("%w: %s requires %q", service.ErrMalformedPayload, typ, field))
	}
	delete(data, "senderIdentity")

	identity, peer := s.Identity(), s.Peer()
	topic := broker.VoiceTopic(identity, peer)

	switch typ {
	case TypeOffer:
		// 通話状態は Opened で作られ、トピックが空になると消える。退出済みのセッションからは作り直さない
		st := g.lookup(topic)
		if st == nil {
			return dropped(metrics.ReasonCallClosed, fmt.Errorf("%w: no call state for %s", session.ErrClosed, topic))
		}
		st.setOffer(data[field], identity)
	case TypeCallEnded:
		if st := g.lookup(topic); st != nil {
			st.clear()
		}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return dropped(metrics.ReasonInvalidJSON, err)
	}
	g.broker.Publish(topic, broker.Envelope{Sender: identity, Payload: payload}, broker.ExcludeIdentity(identity))

	switch typ {
	case TypeOffer:
		g.notify(peer, CallNotification{
			Type:             TypeNotify,
			NotificationKind: KindIncomingCall,
			FromIdentity:     identity,
		})
	case TypeCallEnded:
		g.notify(peer, CallNotification{
			Type:             TypeNotify,
			NotificationKind: KindMissedCall,
			Message:          fmt.Sprintf("Missed voice call from %s", identity),
			FromIdentity:     identity,
		})
	}

	g.metrics.Relay(g.name, typ)
	return delivered()
}

// activeCall は通話トピックのオファー保持状況を返します
func (g *Signaling) activeCall(topic string) (initiator string, ok bool) {
	st := g.lookup(topic)
	if st == nil {
		return "", false
	}
	offer, initiator := st.snapshot()
	return initiator, len(offer) > 0
}

func (g *Signaling) notify(peer string, n CallNotification) {
	g.broker.Publish(broker.NotificationTopic(peer), broker.Envelope{Sender: n.FromIdentity, Payload: mustEncode(n)})
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
