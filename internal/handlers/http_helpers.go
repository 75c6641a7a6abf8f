package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/SteamVC/SteamVC_Talk/internal/auth"
	"github.com/SteamVC/SteamVC_Talk/internal/service"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("handlers")

// errorResponse はエラーレスポンスの構造
type errorResponse struct {
	Message string `json:"message"` // エラーメッセージ
}

// respondJSON はJSONレスポンスを返します
// payloadがnilの場合は空のレスポンスを返します
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warnw("failed to encode response", "error", err)
	}
}

// respondError はエラーレスポンスを返します
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Message: msg})
}

// writeServiceError はサービス層のエラーをHTTPステータスに変換します
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrIdentityMismatch):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrUnknownPeer):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrMalformedPayload), errors.Is(err, service.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// requireIdentity は検証済みのアイデンティティを返します
// ない場合は 401 を返して false を返します
func requireIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeServiceError(w, service.ErrUnauthenticated)
		return "", false
	}
	return identity, true
}

// normalizeID はIDの前後の空白を削除して正規化します
func normalizeID(id string) string {
	return strings.TrimSpace(id)
}
