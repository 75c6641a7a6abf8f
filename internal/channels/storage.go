//go:generate go run go.uber.org/mock/mockgen -source=storage.go -destination=../mocks/mock_storage.go -package=mocks
package channels

import (
	"context"

	"github.com/SteamVC/SteamVC_Talk/internal/models"
)

// Storage はチャネルが呼び出すメッセージ保存の窓口です
// *service.MessageService がこれを満たします
type Storage interface {
	CreateMessage(ctx context.Context, sender, receiver, text string, file *models.FileRef) (models.ChatMessage, error)
	ResolveIdentity(ctx context.Context, name string) (string, bool, error)
}
