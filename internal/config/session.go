package config

import (
	"github.com/SteamVC/SteamVC_Talk/internal/metrics"
	"github.com/SteamVC/SteamVC_Talk/internal/session"
)

// SessionOptions はWebSocketセッションのキュー設定を返します
func (c Config) SessionOptions(m *metrics.Relay) session.Options {
	return session.Options{
		SendQueue:    c.SessionSendQueue,
		InboundQueue: c.SessionInboundQueue,
		Metrics:      m,
	}
}
