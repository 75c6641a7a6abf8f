package repo

import (
	"context"
	"errors"

	"github.com/SteamVC/SteamVC_Talk/internal/models"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("repo")

var ErrUserAlreadyExists = errors.New("user already exists")

// MessageRepo はダイレクトメッセージの永続化を担当します
type MessageRepo interface {
	CreateMessage(ctx context.Context, msg models.ChatMessage) error
	// ListConversation は2者間の最新 limit 件を古い順で返します
	ListConversation(ctx context.Context, a, b string, limit int) ([]models.ChatMessage, error)
	LastMessage(ctx context.Context, a, b string) (models.ChatMessage, bool, error)

	// MarkRead は sender から receiver 宛の未読をすべて既読にし、更新件数を返します
	MarkRead(ctx context.Context, receiver, sender string) (int, error)
	CountUnread(ctx context.Context, receiver, sender string) (int, error)
}

// UserRepo は登録済みユーザーの参照を担当します
// 登録処理そのものは外部コラボレーターの責務で、AddUser はシード用です
type UserRepo interface {
	AddUser(ctx context.Context, user models.User) error
	ExistsUser(ctx context.Context, username string) (bool, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Store はメッセージとユーザーの両方を扱うバックエンドです
type Store interface {
	MessageRepo
	UserRepo
	Close() error
}
