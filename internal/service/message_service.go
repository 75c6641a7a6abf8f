// Package service はビジネスロジックを担当します
// メッセージの保存・履歴取得・既読化とユーザーの解決を提供します
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SteamVC/SteamVC_Talk/internal/idgen"
	"github.com/SteamVC/SteamVC_Talk/internal/models"
	"github.com/SteamVC/SteamVC_Talk/internal/repo"
	logging "github.com/ipfs/go-log/v2"
	"github.com/samber/lo"
)

var log = logging.Logger("service")

// MessageService はダイレクトメッセージのビジネスロジックを提供します
type MessageService struct {
	messages     repo.MessageRepo // メッセージの永続化
	users        repo.UserRepo    // ユーザーの参照
	idg          IDGenerator      // メッセージID生成器
	now          func() time.Time // 時刻の取得（テストで差し替え）
	historyLimit int              // 履歴取得の最大件数
}

// IDGenerator はユニークなIDを生成するインターフェース
type IDGenerator interface {
	New() (string, error) // 新しいIDを生成
}

// messageIDGen はIDGeneratorの実装
type messageIDGen struct{}

// New は新しいメッセージIDを生成します
func (messageIDGen) New() (string, error) { return idgen.NewULID(), nil }

// NewMessageIDGenerator は新しいメッセージID生成器を作成します
func NewMessageIDGenerator() IDGenerator {
	return messageIDGen{}
}

// Option はMessageServiceの設定を変更します
type Option func(*MessageService)

// WithClock は時刻の取得元を差し替えます
func WithClock(now func() time.Time) Option {
	return func(s *MessageService) { s.now = now }
}

// WithHistoryLimit は履歴取得の最大件数を設定します
func WithHistoryLimit(n int) Option {
	return func(s *MessageService) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// NewMessageService は新しいMessageServiceを作成します
func NewMessageService(m repo.MessageRepo, u repo.UserRepo, idg IDGenerator, opts ...Option) *MessageService {
	s := &MessageService{
		messages:     m,
		users:        u,
		idg:          idg,
		now:          time.Now,
		historyLimit: 200,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateMessage はメッセージを保存し、保存したメッセージを返します
// 処理の流れ:
// 1. 本文と添付ファイルの両方が空でないことを確認
// 2. ULIDと送信時刻を割り当て
// 3. リポジトリに保存（失敗時は ErrStorage でラップ）
func (s *MessageService) CreateMessage(ctx context.Context, sender, receiver, text string, file *models.FileRef) (models.ChatMessage, error) {
	if text == "" && (file == nil || file.URL == "") {
		return models.ChatMessage{}, ErrEmptyMessage
	}

	id, err := s.idg.New()
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("%w: generate id: %v", ErrStorage, err)
	}

	msg := models.ChatMessage{
		ID:        id,
		Sender:    sender,
		Receiver:  receiver,
		Content:   text,
		File:      file,
		Timestamp: s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return models.ChatMessage{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return msg, nil
}

// ResolveIdentity はユーザー名が登録済みかどうかを確認します
// 戻り値: 正規化済みのユーザー名、存在フラグ、エラー
func (s *MessageService) ResolveIdentity(ctx context.Context, name string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, nil
	}
	ok, err := s.users.ExistsUser(ctx, name)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return name, ok, nil
}

// History は2者間の会話履歴を返します
// 相手から自分宛の未読メッセージは取得前に既読にします
func (s *MessageService) History(ctx context.Context, me, peer string) ([]models.ChatMessage, error) {
	if err := s.requirePeer(ctx, peer); err != nil {
		return nil, err
	}
	if _, err := s.messages.MarkRead(ctx, me, peer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	msgs, err := s.messages.ListConversation(ctx, me, peer, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return msgs, nil
}

// MarkRead は相手から自分宛の未読メッセージを既読にします
func (s *MessageService) MarkRead(ctx context.Context, me, peer string) (int, error) {
	if err := s.requirePeer(ctx, peer); err != nil {
		return 0, err
	}
	n, err := s.messages.MarkRead(ctx, me, peer)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return n, nil
}

// Conversations は自分以外の全ユーザーについて最新メッセージと未読数を返します
func (s *MessageService) Conversations(ctx context.Context, me string) ([]models.Conversation, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	peers := lo.Filter(users, func(u models.User, _ int) bool { return u.Username != me })
	res := make([]models.Conversation, 0, len(peers))
	for _, u := range peers {
		conv := models.Conversation{Peer: u.Username}

		last, ok, err := s.messages.LastMessage(ctx, me, u.Username)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if ok {
			conv.LastMessage = &last
		}
		if conv.UnreadCount, err = s.messages.CountUnread(ctx, me, u.Username); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		res = append(res, conv)
	}
	return res, nil
}

// SeedUsers は起動時にユーザーを登録します（既存ユーザーは無視）
func (s *MessageService) SeedUsers(ctx context.Context, names []string) error {
	for _, name := range names {
		err := s.users.AddUser(ctx, models.User{Username: name, CreatedAt: s.now().Unix()})
		if errors.Is(err, repo.ErrUserAlreadyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed user %s: %w", name, err)
		}
		log.Infow("seeded user", "username", name)
	}
	return nil
}

func (s *MessageService) requirePeer(ctx context.Context, peer string) error {
	_, ok, err := s.ResolveIdentity(ctx, peer)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownPeer
	}
	return nil
}
