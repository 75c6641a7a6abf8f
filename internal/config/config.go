// Package config はアプリケーションの設定を管理します
// 環境変数（と任意の .env ファイル）から設定を読み込み、デフォルト値を提供します
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ストレージの種類
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// defaultAllowedOrigins はCORSで許可するデフォルトのオリジン一覧
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://localhost:3002",
}

// Config はアプリケーションの設定を保持します
type Config struct {
	APIAddr             string        `env:"API_ADDR,default=:8080" validate:"required"`                     // APIサーバーのリッスンアドレス
	StorageBackend      string        `env:"STORAGE_BACKEND,default=redis" validate:"oneof=redis sqlite"`    // メッセージの保存先
	RedisAddr           string        `env:"REDIS_ADDR,default=localhost:6379"`                              // Redisの接続先
	SQLitePath          string        `env:"SQLITE_PATH,default=data/talk.db"`                               // SQLiteファイルのパス
	AllowedOriginsCSV   string        `env:"CORS_ALLOWED_ORIGINS"`                                           // CORSで許可するオリジン（カンマ区切り）
	AuthJWTSecret       string        `env:"AUTH_JWT_SECRET,required=true" validate:"min=16"`                // トークン署名用の秘密鍵
	AuthTokenTTL        time.Duration `env:"AUTH_TOKEN_TTL,default=24h" validate:"gt=0"`                     // トークンの有効期間
	SessionSendQueue    int           `env:"SESSION_SEND_QUEUE,default=64" validate:"gt=0"`                  // セッションの送信キュー長
	SessionInboundQueue int           `env:"SESSION_INBOUND_QUEUE,default=16" validate:"gt=0"`               // セッションの受信キュー長
	HistoryLimit        int           `env:"HISTORY_LIMIT,default=200" validate:"gt=0"`                      // 履歴取得の最大件数
	LogLevel            string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"` // ログレベル
	SeedUsersCSV        string        `env:"SEED_USERS"`                                                     // 起動時に登録するユーザー（カンマ区切り）
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s" validate:"gt=0"`                   // Graceful Shutdownのタイムアウト
}

// Load は環境変数から設定を読み込みます
// カレントディレクトリに .env があれば先に読み込みます（既存の環境変数は上書きしない）
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// AllowedOrigins はCORSとWebSocketで許可するオリジン一覧を返します
func (c Config) AllowedOrigins() []string {
	return splitCSV(c.AllowedOriginsCSV, defaultAllowedOrigins)
}

// SeedUsers は起動時に登録するユーザー名の一覧を返します
func (c Config) SeedUsers() []string {
	return splitCSV(c.SeedUsersCSV, nil)
}

// splitCSV はカンマ区切りの文字列をリストにします
// 空、または有効な要素がない場合はデフォルト値を返します
func splitCSV(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) > 0 {
		return out
	}
	return def
}
