// Package broker はトピック名から購読セッション集合への対応を管理します
// スレッドセーフな実装により、複数のgoroutineから同時にアクセス可能です
package broker

import (
	"sort"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/samber/lo"
)

var log = logging.Logger("broker")

// Subscriber はトピックを購読できる接続です
// Deliver はブロックしてはいけません（キューが満杯なら false を返して破棄）
type Subscriber interface {
	ID() string       // セッションID
	Identity() string // 認証済みユーザー名
	Deliver(env Envelope) bool
}

// Envelope はブローカーが配信する1件分のイベントです
type Envelope struct {
	Sender  string // 送信者のアイデンティティ（配信ペイロードには含めない）
	Payload []byte // エンコード済みのワイヤーペイロード
	Control any    // セッション内部で処理する制御イベント（WebSocketには書き込まない）
}

// EmptyHook はトピックの最後の購読者が抜けたときに呼ばれます
// ブローカーのロックを保持したまま呼ばれるため、ブローカーを再度呼んではいけません
type EmptyHook func(topic string)

// Broker はプロセス全体のトピックレジストリです
type Broker struct {
	mu     sync.RWMutex      // topics マップの読み書きのロック
	topics map[string]*topic // トピック名をキーとしたトピックのマップ
	hooks  []EmptyHook       // 空トピック削除時のフック
}

// topic は1つのトピックの購読者集合を管理します
type topic struct {
	name string
	mu   sync.RWMutex          // 購読者集合の変更と配信を排他する
	subs map[string]Subscriber // セッションIDをキーとした購読者のマップ
}

// New は新しいBrokerを作成します
func New() *Broker {
	return &Broker{topics: make(map[string]*topic)}
}

// OnEmpty は空トピック削除時のフックを登録します
// 起動時の配線でのみ呼び出してください
func (b *Broker) OnEmpty(fn EmptyHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, fn)
}

// Join はセッションをトピックに参加させます
// トピックが存在しない場合は新規作成します。参加済みなら何もせず false を返します
func (b *Broker) Join(name string, s Subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, exists := b.topics[name]
	if !exists {
		t = &topic{name: name, subs: make(map[string]Subscriber)}
		b.topics[name] = t
	}

	t.mu.Lock()
	_, already := t.subs[s.ID()]
	t.subs[s.ID()] = s
	t.mu.Unlock()

	if !already {
		log.Debugw("joined", "topic", name, "session", s.ID(), "identity", s.Identity())
	}
	return !already
}

// Leave はセッションをトピックから退出させます
// トピックが空になった場合はトピック自体を削除し、フックを呼びます
func (b *Broker) Leave(name string, s Subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, exists := b.topics[name]
	if !exists {
		return false
	}

	t.mu.Lock()
	_, present := t.subs[s.ID()]
	delete(t.subs, s.ID())
	isEmpty := len(t.subs) == 0
	t.mu.Unlock()

	if isEmpty {
		delete(b.topics, name)
		for _, fn := range b.hooks {
			fn(name)
		}
	}
	if present {
		log.Debugw("left", "topic", name, "session", s.ID(), "empty", isEmpty)
	}
	return present
}

// PublishOption は配信対象を絞り込みます
type PublishOption func(*publishOptions)

type publishOptions struct {
	excludeSession  string
	excludeIdentity string
}

// ExcludeSession は指定セッションを配信対象から除外します
func ExcludeSession(id string) PublishOption {
	return func(o *publishOptions) { o.excludeSession = id }
}

// ExcludeIdentity は指定ユーザーの全セッションを配信対象から除外します
func ExcludeIdentity(identity string) PublishOption {
	return func(o *publishOptions) { o.excludeIdentity = identity }
}

// Publish は呼び出し時点の全購読者にイベントを配信し、配信できた件数を返します
// 購読者がいないトピックへの配信は何もせず 0 を返します
func (b *Broker) Publish(name string, env Envelope, opts ...PublishOption) int {
	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}

	t := b.lookup(name)
	if t == nil {
		return 0
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	delivered := 0
	for id, s := range t.subs {
		if o.excludeSession != "" && id == o.excludeSession {
			continue
		}
		if o.excludeIdentity != "" && s.Identity() == o.excludeIdentity {
			continue
		}
		if s.Deliver(env) {
			delivered++
		} else {
			log.Warnw("delivery dropped", "topic", name, "session", id)
		}
	}
	return delivered
}

// SendTo はトピックに参加中の特定セッションだけにイベントを送ります
func (b *Broker) SendTo(name, sessionID string, env Envelope) bool {
	t := b.lookup(name)
	if t == nil {
		return false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.subs[sessionID]
	if !ok {
		return false
	}
	return s.Deliver(env)
}

// Subscribers はトピックの購読者数を返します
func (b *Broker) Subscribers(name string) int {
	t := b.lookup(name)
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// identities はトピックに参加中のユーザー名を重複なしで返します
func (b *Broker) identities(name string) []string {
	t := b.lookup(name)
	if t == nil {
		return nil
	}
	t.mu.RLock()
	ids := lo.Uniq(lo.MapToSlice(t.subs, func(_ string, s Subscriber) string { return s.Identity() }))
	t.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Topics は現在存在するトピック名を返します
func (b *Broker) Topics() []string {
	b.mu.RLock()
	names := lo.Keys(b.topics)
	b.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (b *Broker) lookup(name string) *topic {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.topics[name]
}
