// Package session は1本のWebSocket接続と認証済みアイデンティティの組を管理します
// 各セッションは受信・処理・送信の3つのgoroutineで動作します
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/SteamVC/SteamVC_Talk/internal/broker"
	"github.com/SteamVC/SteamVC_Talk/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("session")

const (
	defaultSendQueue    = 64
	defaultInboundQueue = 16
)

// ErrClosed はクローズ済みのセッションへの送信です
var ErrClosed = errors.New("session closed")

// Conn はセッションが使う接続の最小インターフェースです
// *websocket.Conn がこれを満たします
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Handler はチャネルごとの受信処理です
type Handler interface {
	// Name はメトリクスとログに使うチャネル名です
	Name() string
	// Opened はトピック参加直後に呼ばれます
	Opened(s *Session)
	// HandleFrame は受信フレームを1件処理します。エラーを返すとセッションを閉じます
	HandleFrame(ctx context.Context, s *Session, frame []byte) error
	// HandleControl はブローカー経由の制御イベントを送信goroutine上で処理します
	HandleControl(s *Session, ctl any)
}

// Options はセッションのキューサイズなどを指定します
type Options struct {
	SendQueue    int            // 送信キューの長さ
	InboundQueue int            // 受信フレームキューの長さ
	Metrics      *metrics.Relay // nil の場合は記録しない
}

// Params はセッションの接続情報です
type Params struct {
	Identity string   // 認証済みユーザー名
	Peer     string   // 相手のユーザー名（通知チャネルでは空）
	Topics   []string // 参加するトピック
}

// Session は1本の接続を表します
type Session struct {
	id       string
	identity string
	peer     string
	conn     Conn
	broker   *broker.Broker
	handler  Handler
	metrics  *metrics.Relay

	send    chan broker.Envelope // 送信キュー
	inbound chan []byte          // 処理待ちの受信フレーム

	mu     sync.Mutex          // joined の読み書きのロック
	topics []string            // 参加予定のトピック
	joined map[string]struct{} // 参加中のトピック

	closeOnce sync.Once
	done      chan struct{}
}

// New は新しいSessionを作成します。トピックへの参加は Open で行います
func New(conn Conn, b *broker.Broker, h Handler, p Params, opts Options) *Session {
	if opts.SendQueue <= 0 {
		opts.SendQueue = defaultSendQueue
	}
	if opts.InboundQueue <= 0 {
		opts.InboundQueue = defaultInboundQueue
	}
	return &Session{
		id:       uuid.NewString(),
		identity: p.Identity,
		peer:     p.Peer,
		conn:     conn,
		broker:   b,
		handler:  h,
		metrics:  opts.Metrics,
		send:     make(chan broker.Envelope, opts.SendQueue),
		inbound:  make(chan []byte, opts.InboundQueue),
		topics:   p.Topics,
		joined:   make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string             { return s.id }
func (s *Session) Identity() string       { return s.identity }
func (s *Session) Peer() string           { return s.peer }
func (s *Session) Broker() *broker.Broker { return s.broker }

// joinedTopics は参加中のトピック名を返します
func (s *Session) joinedTopics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.joined))
	for t := range s.joined {
		out = append(out, t)
	}
	return out
}

// Deliver は送信キューにイベントを積みます（ブロックしない）
// キューが満杯の場合は破棄して false を返します
func (s *Session) Deliver(env broker.Envelope) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- env:
		return true
	default:
		s.metrics.Drop(s.handler.Name(), metrics.ReasonQueueFull)
		log.Warnw("send queue full, event dropped", "session", s.id, "identity", s.identity)
		return false
	}
}

// Send はペイロードをJSONにエンコードしてこのセッションだけに送ります
func (s *Session) Send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if !s.Deliver(broker.Envelope{Sender: s.identity, Payload: data}) {
		return ErrClosed
	}
	return nil
}

// Open はトピックに参加し、ハンドラーに参加完了を通知します
func (s *Session) Open() {
	s.metrics.SessionOpened(s.handler.Name())

	s.mu.Lock()
	for _, t := range s.topics {
		s.broker.Join(t, s)
		s.joined[t] = struct{}{}
	}
	s.mu.Unlock()

	log.Infow("session opened", "channel", s.handler.Name(), "session", s.id, "identity", s.identity, "peer", s.peer)
	s.handler.Opened(s)
}

// Close は全トピックから退出して接続を閉じます
// 何度呼んでも安全で、戻った時点で全トピックからの退出が完了しています
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		for t := range s.joined {
			s.broker.Leave(t, s)
		}
		s.joined = map[string]struct{}{}
		s.mu.Unlock()

		close(s.done)
		if err := s.conn.Close(); err != nil {
			log.Debugw("close connection", "session", s.id, "error", err)
		}
		s.metrics.SessionClosed(s.handler.Name())
		log.Infow("session closed", "channel", s.handler.Name(), "session", s.id, "identity", s.identity)
	})
}

// Run は接続が切れるまでセッションを動かします
// 戻る前に Close を呼び、全goroutineの終了を待ちます
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.writePump()
	}()
	go func() {
		defer wg.Done()
		s.processLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	s.readLoop()
	s.Close()
	wg.Wait()
}

// readLoop は受信フレームを処理キューに渡します
// 処理が詰まっている間は受信を待たせ、セッション内の順序を保ちます
func (s *Session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnw("websocket read error", "session", s.id, "error", err)
			}
			return
		}
		select {
		case s.inbound <- data:
		case <-s.done:
			return
		}
	}
}

// processLoop はクローズ後に残ったフレームを処理しません
func (s *Session) processLoop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		default:
		}
		select {
		case frame := <-s.inbound:
			if err := s.handler.HandleFrame(ctx, s, frame); err != nil {
				log.Warnw("closing session", "channel", s.handler.Name(), "session", s.id, "identity", s.identity, "error", err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) writePump() {
	for {
		select {
		case env := <-s.send:
			if env.Control != nil {
				s.handler.HandleControl(s, env.Control)
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, env.Payload); err != nil {
				log.Warnw("websocket write error", "session", s.id, "error", err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
