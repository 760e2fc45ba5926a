package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tamangRajkumar/backend-final-year-project/internal/auth"
	"github.com/tamangRajkumar/backend-final-year-project/internal/config"
	"github.com/tamangRajkumar/backend-final-year-project/internal/events"
	"github.com/tamangRajkumar/backend-final-year-project/internal/handler"
	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
	"github.com/tamangRajkumar/backend-final-year-project/internal/middleware"
	"github.com/tamangRajkumar/backend-final-year-project/internal/model"
	"github.com/tamangRajkumar/backend-final-year-project/internal/push"
	"github.com/tamangRajkumar/backend-final-year-project/internal/repository"
	"github.com/tamangRajkumar/backend-final-year-project/internal/service"
	"github.com/tamangRajkumar/backend-final-year-project/internal/startup"
	"github.com/tamangRajkumar/backend-final-year-project/internal/storage"
	"github.com/tamangRajkumar/backend-final-year-project/internal/storage/memory"
	mongostore "github.com/tamangRajkumar/backend-final-year-project/internal/storage/mongo"
	"github.com/tamangRajkumar/backend-final-year-project/internal/ws"
)

// Пользователи для локального запуска (-dev или STORE_DRIVER=memory): каталог пользователей ведёт другой сервис.
var devUsers = []model.UserProfile{
	{ID: "dev-alice", FName: "Alice", LName: "Dev", Email: "alice@example.com", Role: "user"},
	{ID: "dev-bob", FName: "Bob", LName: "Dev", Email: "bob@example.com", Role: "user"},
}

// stores: выбранный бэкенд хранилища и функция его закрытия.
type stores struct {
	chats    storage.ChatStore
	messages storage.MessageStore
	users    storage.UserDirectory
	close    func()
}

func main() {
	logger.SetPrefix("api")
	defer logger.Sync()
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	storeFlag := flag.String("store", "", "override STORE_DRIVER: postgres | mongo | memory")
	issueToken := flag.String("issue-token", "", "print a 24h JWT for the given user id and exit")
	flag.Parse()

	logger.Info("starting API service")
	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("config: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)
	if *storeFlag != "" {
		cfg.StoreDriver = strings.ToLower(*storeFlag)
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	if *issueToken != "" {
		token, err := verifier.Issue(*issueToken, 24*time.Hour)
		if err != nil {
			logger.Errorf("issue token: %v", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if *dev {
		cfg.StoreDriver = config.StorePostgres
		embeddedDB, err := startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	st, err := openStores(cfg, *dev)
	if err != nil {
		logger.Errorf("store: %v", err)
		os.Exit(1)
	}
	defer st.close()
	if *migrate && !*dev {
		return
	}

	publisher := events.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Errorf("events close: %v", err)
		}
	}()
	pushClient := push.NewClient(cfg.PushServiceURL)

	svc := service.NewChatService(service.Deps{
		Chats:    st.chats,
		Messages: st.messages,
		Users:    st.users,
		Events:   publisher,
		Push:     pushClient,
	})

	hubCtx, hubCancel := context.WithCancel(context.Background())
	var broker ws.Broker
	var redisBroker *ws.RedisBroker
	if cfg.Redis.URL != "" {
		rdb := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "")
		defer rdb.Close()
		redisBroker = ws.NewRedisBroker(rdb, cfg.Redis.Channel)
		broker = redisBroker
	}
	hub := ws.NewHub(svc, broker, ws.Options{
		MaxConnections:  cfg.WS.MaxConnections,
		SendBufferSize:  cfg.WS.SendBufferSize,
		WriteTimeout:    cfg.WS.WriteTimeout,
		PongTimeout:     cfg.WS.PongTimeout,
		MaxMessageSize:  cfg.WS.MaxMessageSize,
		EventsPerSecond: cfg.WS.EventsPerSecond,
	})

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()
	if redisBroker != nil {
		hubWg.Add(1)
		go func() {
			defer hubWg.Done()
			if err := redisBroker.Run(hubCtx, hub); err != nil {
				logger.Errorf("realtime broker: %v", err)
			}
		}()
	}

	chatH := handler.NewChatHandler(svc, hub)
	msgH := handler.NewMessageHandler(svc, hub)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	configH := handler.NewConfigHandler(cfg)
	pushH := handler.NewPushHandler(pushClient)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket: иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		compressed := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compressed.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = fmt.Fprintf(w, `{"success":true,"status":"ok","connections":%d}`, hub.ConnectionCount())
	})
	r.Get("/api/config/push", configH.GetPushConfig)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(verifier))
		r.Use(middleware.RateLimitUser)
		handler.ChatRoutes(r, chatH, msgH)
		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s (store=%s)", cfg.ServerAddr, cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	svc.Wait()
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

// openStores подключает хранилище по cfg.StoreDriver. Для postgres применяет миграции.
func openStores(cfg *config.Config, seed bool) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		mem := memory.New()
		for _, u := range devUsers {
			mem.AddUser(u)
		}
		logger.Infof("memory store: seeded %d dev users", len(devUsers))
		return &stores{chats: mem.Chats(), messages: mem.Messages(), users: mem, close: func() {}}, nil

	case config.StoreMongo:
		client := startup.ConnectMongoWithRetry(cfg.Mongo.URI, 60*time.Second, "")
		ms := mongostore.New(client.Database(cfg.Mongo.Database))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := ms.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		logger.Infof("mongo connected, database %s", cfg.Mongo.Database)
		return &stores{chats: ms.Chats(), messages: ms.Messages(), users: ms, close: func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Errorf("mongo disconnect: %v", err)
			}
		}}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 2
	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	users := repository.NewUserRepository(pool)
	if seed {
		for i := range devUsers {
			if err := users.Upsert(ctx, &devUsers[i]); err != nil {
				logger.Errorf("seed user %s: %v", devUsers[i].ID, err)
			}
		}
	}
	logger.Info("database connected, migrations applied")
	return &stores{
		chats:    repository.NewChatRepository(pool),
		messages: repository.NewMessageRepository(pool),
		users:    users,
		close:    pool.Close,
	}, nil
}

func allowedOrigins(v string) []string {
	var out []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "chat"
		password = "chat_secret"
		database = "chat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
