package handlers

import (
	"net/http"

	"github.com/SteamVC/SteamVC_Talk/internal/broker"
	"github.com/SteamVC/SteamVC_Talk/internal/channels"
	"github.com/SteamVC/SteamVC_Talk/internal/metrics"
	"github.com/SteamVC/SteamVC_Talk/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// WebSocketHandler はチャット・通知・通話シグナリングのWebSocket接続を処理するハンドラー
type WebSocketHandler struct {
	store     channels.Storage       // アイデンティティの解決とメッセージ保存
	broker    *broker.Broker         // トピックレジストリ
	chat      *channels.Chat         // チャットチャネル
	notify    *channels.Notification // 通知チャネル
	signaling *channels.Signaling    // 通話シグナリングチャネル
	upgrader  websocket.Upgrader     // HTTPからWebSocketへのアップグレーダー
	opts      session.Options        // セッションのキューサイズなど
}

// NewWebSocketHandler は新しいWebSocketHandlerを作成します
// allowedOrigins に "*" を含めると全オリジンを許可します
func NewWebSocketHandler(store channels.Storage, b *broker.Broker, m *metrics.Relay, allowedOrigins []string, opts session.Options) *WebSocketHandler {
	opts.Metrics = m
	return &WebSocketHandler{
		store:     store,
		broker:    b,
		chat:      channels.NewChat(b, store, m),
		notify:    channels.NewNotification(b, m),
		signaling: channels.NewSignaling(b, m),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		opts: opts,
	}
}

// Chat は /ws/chat/{username} の接続を処理します
func (h *WebSocketHandler) Chat(w http.ResponseWriter, r *http.Request) {
	identity, peer, ok := h.resolvePair(w, r)
	if !ok {
		return
	}
	h.serve(w, r, h.chat, session.Params{Identity: identity, Peer: peer, Topics: h.chat.Topics(identity, peer)})
}

// Notifications は /ws/notifications の接続を処理します
func (h *WebSocketHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	h.serve(w, r, h.notify, session.Params{Identity: identity, Topics: h.notify.Topics(identity)})
}

// Voice は /ws/voice/{username} の接続を処理します
func (h *WebSocketHandler) Voice(w http.ResponseWriter, r *http.Request) {
	identity, peer, ok := h.resolvePair(w, r)
	if !ok {
		return
	}
	h.serve(w, r, h.signaling, session.Params{Identity: identity, Peer: peer, Topics: h.signaling.Topics(identity, peer)})
}

// resolvePair はアップグレード前に接続者と相手を確認します
// 処理の流れ:
// 1. 検証済みのアイデンティティがなければ 401
// 2. URLのユーザー名が不正なら 400
// 3. 相手が登録済みユーザーでなければ 404
func (h *WebSocketHandler) resolvePair(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return "", "", false
	}

	peer := normalizeID(chi.URLParam(r, "username"))
	if err := validateUsername(peer); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}

	resolved, exists, err := h.store.ResolveIdentity(r.Context(), peer)
	if err != nil {
		log.Errorw("resolve peer", "identity", identity, "peer", peer, "error", err)
		writeServiceError(w, err)
		return "", "", false
	}
	if !exists {
		respondError(w, http.StatusNotFound, "unknown peer")
		return "", "", false
	}
	return identity, resolved, true
}

// serve は接続をアップグレードし、切断されるまでセッションを動かします
func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, handler session.Handler, p session.Params) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("websocket upgrade error", "channel", handler.Name(), "identity", p.Identity, "error", err)
		return
	}

	s := session.New(conn, h.broker, handler, p, h.opts)
	s.Open()
	s.Run(r.Context())
}

// checkOrigin は許可されたオリジンからの接続だけを受け付けます
// Origin ヘッダーがない（ブラウザ以外の）クライアントは許可します
func checkOrigin(allowed []string) func(r *http.Request) bool {
	allowAll := lo.Contains(allowed, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		return lo.Contains(allowed, origin)
	}
}
