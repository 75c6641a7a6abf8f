package handlers

import (
	"net/http"

	"github.com/SteamVC/SteamVC_Talk/internal/service"
	"github.com/go-chi/chi/v5"
)

// MessageHandler は会話一覧・履歴・既読化のHTTPハンドラー
type MessageHandler struct {
	svc *service.MessageService
}

func NewMessageHandler(s *service.MessageService) *MessageHandler { return &MessageHandler{svc: s} }

// Conversations は自分以外の各ユーザーとの最新メッセージと未読数を返します
func (h *MessageHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	me, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	convs, err := h.svc.Conversations(r.Context(), me)
	if err != nil {
		log.Errorw("list conversations", "identity", me, "error", err)
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// History は相手との会話履歴を返します（相手からの未読は既読になります）
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	me, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	peer := normalizeID(chi.URLParam(r, "username"))
	if err := validateUsername(peer); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	msgs, err := h.svc.History(r.Context(), me, peer)
	if err != nil {
		log.Warnw("history", "identity", me, "peer", peer, "error", err)
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"peer": peer, "messages": msgs})
}

// MarkRead は相手からの未読メッセージを既読にします
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	me, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	peer := normalizeID(chi.URLParam(r, "username"))
	if err := validateUsername(peer); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.svc.MarkRead(r.Context(), me, peer)
	if err != nil {
		log.Warnw("mark read", "identity", me, "peer", peer, "error", err)
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "marked": n})
}
