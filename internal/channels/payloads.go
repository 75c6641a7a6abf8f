// Package channels はチャット・通知・通話シグナリングの各チャネルを実装します
// 受信ペイロードを検証し、ブローカー経由で購読セッションへ中継します
package channels

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("channels")

var validate = validator.New()

// メッセージタイプ
const (
	TypeChatMessage  = "chat_message"
	TypeNotify       = "notify"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeCallEnded    = "call-ended"
)

// 通知の種類
const (
	KindIncomingCall = "incoming_call"
	KindMissedCall   = "missed_call"
)

// typeOnly は type フィールドだけを読むためのものです
type typeOnly struct {
	Type string `json:"type"`
}

// ChatInbound はクライアントから受信するチャットメッセージ
type ChatInbound struct {
	Type           string `json:"type,omitempty"`
	Message        string `json:"message" validate:"max=10000"`
	SenderIdentity string `json:"senderIdentity" validate:"required"`
	FileURL        string `json:"fileUrl,omitempty" validate:"max=2048"`
	FileName       string `json:"fileName,omitempty" validate:"max=255"`
}

// ChatOutbound はチャットトピックに配信するメッセージ
type ChatOutbound struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	SenderIdentity string `json:"senderIdentity"`
	FileURL        string `json:"fileUrl,omitempty"`
	FileName       string `json:"fileName,omitempty"`
}

// PreviewEvent は新着メッセージのプレビュー通知
type PreviewEvent struct {
	Type           string `json:"type"`
	SenderIdentity string `json:"senderIdentity"`
	Preview        string `json:"preview"`
	Timestamp      string `json:"timestamp"` // 例: "03:04 PM"
}

// CallNotification は着信・不在着信の通知
type CallNotification struct {
	Type             string `json:"type"`
	NotificationKind string `json:"notificationKind"`
	Message          string `json:"message,omitempty"`
	FromIdentity     string `json:"fromIdentity"`
}

// OfferResend は再参加したセッションに送り直すオファー
type OfferResend struct {
	Type  string          `json:"type"`
	Offer json.RawMessage `json:"offer"`
}

// Pong はキープアライブの応答
type Pong struct {
	Type string `json:"type"`
}

// Probe は check_active_call の制御イベントです
// セッション内部でのみ扱い、クライアントには送信しません
type Probe struct {
	ID                string // プローブごとに一意（再送は1回だけ）
	Topic             string
	RejoiningIdentity string
	RejoiningSession  string
}

func mustEncode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// 固定の構造体のみを渡すため失敗しない
		panic(err)
	}
	return b
}
