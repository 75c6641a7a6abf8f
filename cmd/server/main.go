package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SteamVC/SteamVC_Talk/internal/auth"
	"github.com/SteamVC/SteamVC_Talk/internal/broker"
	"github.com/SteamVC/SteamVC_Talk/internal/config"
	"github.com/SteamVC/SteamVC_Talk/internal/handlers"
	httpx "github.com/SteamVC/SteamVC_Talk/internal/http"
	"github.com/SteamVC/SteamVC_Talk/internal/metrics"
	"github.com/SteamVC/SteamVC_Talk/internal/repo"
	"github.com/SteamVC/SteamVC_Talk/internal/service"
	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

var log = logging.Logger("server")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logging.SetLogLevel("*", cfg.LogLevel); err != nil {
		log.Warnw("invalid log level, keeping default", "level", cfg.LogLevel, "error", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StorageBackend, err)
	}
	defer store.Close()

	svc := service.NewMessageService(store, store, service.NewMessageIDGenerator(), service.WithHistoryLimit(cfg.HistoryLimit))
	if err := svc.SeedUsers(context.Background(), cfg.SeedUsers()); err != nil {
		log.Fatalf("seed users: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	b := broker.New()
	verifier := auth.NewJWTVerifier(cfg.AuthJWTSecret, cfg.AuthTokenTTL)
	ws := handlers.NewWebSocketHandler(svc, b, m, cfg.AllowedOrigins(), cfg.SessionOptions(m))
	router := httpx.NewRouter(handlers.NewMessageHandler(svc), ws, verifier, reg, cfg.AllowedOrigins())

	// WebSocketセッションはリクエストのコンテキストで動くため、停止時にまとめてキャンセルする
	baseCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelSessions)

	// Graceful shutdown用のシグナルチャネル
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// サーバーを別goroutineで起動
	go func() {
		log.Infow("listening", "addr", cfg.APIAddr, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// シャットダウンシグナルを待つ
	<-sigChan
	log.Info("shutdown signal received, shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server shutdown error", "error", err)
	}

	log.Info("server stopped")
}

// openStore は設定に応じてメッセージストアを開きます
func openStore(cfg config.Config) (repo.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		log.Infow("using sqlite", "path", cfg.SQLitePath)
		return repo.OpenSQLite(cfg.SQLitePath)
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			PoolSize:     10,              // 接続プールサイズ
			MinIdleConns: 5,               // 最小アイドル接続数
			MaxRetries:   3,               // リトライ回数
			DialTimeout:  5 * time.Second, // 接続タイムアウト
			ReadTimeout:  3 * time.Second, // 読み込みタイムアウト
			WriteTimeout: 3 * time.Second, // 書き込みタイムアウト
			PoolTimeout:  4 * time.Second, // プールからの取得タイムアウト
		})

		// Redis接続確認
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			_ = rdb.Close()
			return nil, err
		}
		log.Infow("connected to redis", "addr", cfg.RedisAddr)
		return &closingStore{Store: repo.NewRedisStore(rdb), closeFn: rdb.Close}, nil
	}
}

// closingStore はストアと一緒にRedisクライアントも閉じます
type closingStore struct {
	repo.Store
	closeFn func() error
}

func (c *closingStore) Close() error {
	return errors.Join(c.Store.Close(), c.closeFn())
}
