package handlers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SteamVC/SteamVC_Talk/internal/auth"
	"github.com/SteamVC/SteamVC_Talk/internal/broker"
	"github.com/SteamVC/SteamVC_Talk/internal/mocks"
	"github.com/SteamVC/SteamVC_Talk/internal/service"
	"github.com/SteamVC/SteamVC_Talk/internal/session"
	"github.com/go-chi/chi/v5"
	logging "github.com/ipfs/go-log/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestValidateUsername(t *testing.T) {
	for _, ok := range []string{"alice", "bob.smith", "c@d", "x+y", "under_score", " padded "} {
		require.NoError(t, validateUsername(ok), ok)
	}
	for _, bad := range []string{"", "   ", "has space", "semi;colon", strings.Repeat("a", 151)} {
		require.Error(t, validateUsername(bad), bad)
	}
}

func TestCheckOrigin(t *testing.T) {
	req := require.New(t)
	withOrigin := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws/notifications", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	check := checkOrigin([]string{"http://localhost:3000"})
	req.True(check(withOrigin("http://localhost:3000")))
	req.False(check(withOrigin("http://evil.example")))
	req.True(check(withOrigin("")))

	req.True(checkOrigin([]string{"*"})(withOrigin("http://anything.example")))
}

func TestWriteServiceError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{service.ErrIdentityMismatch, http.StatusForbidden},
		{fmt.Errorf("lookup: %w", service.ErrUnknownPeer), http.StatusNotFound},
		{service.ErrEmptyMessage, http.StatusBadRequest},
		{fmt.Errorf("%w: boom", service.ErrStorage), http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeServiceError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func pairRequest(identity, username string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("username", username)
	r := httptest.NewRequest(http.MethodGet, "/ws/chat/"+username, nil)
	ctx := context.WithValue(auth.WithIdentity(r.Context(), identity), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

func TestResolvePair(t *testing.T) {
	t.Run("resolved peer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStorage(ctrl)
		store.EXPECT().ResolveIdentity(gomock.Any(), "bob").Return("bob", true, nil)
		h := NewWebSocketHandler(store, broker.New(), nil, nil, session.Options{})

		rec := httptest.NewRecorder()
		identity, peer, ok := h.resolvePair(rec, pairRequest("alice", " bob "))
		require.True(t, ok)
		require.Equal(t, "alice", identity)
		require.Equal(t, "bob", peer)
	})

	t.Run("unknown peer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStorage(ctrl)
		store.EXPECT().ResolveIdentity(gomock.Any(), "mallory").Return("", false, nil)
		h := NewWebSocketHandler(store, broker.New(), nil, nil, session.Options{})

		rec := httptest.NewRecorder()
		_, _, ok := h.resolvePair(rec, pairRequest("alice", "mallory"))
		require.False(t, ok)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("lookup failure keeps requested name in log", func(t *testing.T) {
		pr := logging.NewPipeReader(logging.PipeFormat(logging.JSONOutput))
		var (
			mu    sync.Mutex
			lines []string
		)
		go func() {
			sc := bufio.NewScanner(pr)
			for sc.Scan() {
				mu.Lock()
				lines = append(lines, sc.Text())
				mu.Unlock()
			}
		}()
		t.Cleanup(func() { _ = pr.Close() })

		ctrl := gomock.NewController(t)
		store := mocks.NewMockStorage(ctrl)
		store.EXPECT().ResolveIdentity(gomock.Any(), "bob").Return("", false, fmt.Errorf("%w: db down", service.ErrStorage))
		h := NewWebSocketHandler(store, broker.New(), nil, nil, session.Options{})

		rec := httptest.NewRecorder()
		_, _, ok := h.resolvePair(rec, pairRequest("alice", "bob"))
		require.False(t, ok)
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			for _, l := range lines {
				if strings.Contains(l, "resolve peer") {
					return strings.Contains(l, `"peer":"bob"`)
				}
			}
			return false
		}, time.Second, 5*time.Millisecond)
	})
}
