package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatline/internal/config"
	"github.com/chatline/internal/handler"
	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/middleware"
	"github.com/chatline/internal/objectstore"
	"github.com/chatline/internal/push"
	"github.com/chatline/internal/repository"
	"github.com/chatline/internal/service"
	"github.com/chatline/internal/startup"
	"github.com/chatline/internal/ws"
	"github.com/chatline/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
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

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	userRepo := repository.NewUserRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	reactRepo := repository.NewReactionRepository(pool)
	convoRepo := repository.NewConversationRepository(pool)
	groupRepo := repository.NewGroupRepository(pool)
	pushRepo := repository.NewPushSubscriptionRepository(pool)

	hub := ws.NewHub(cfg.MaxWSConnections)
	hubCtx, hubCancel := context.WithCancel(context.Background())

	notifier := push.NewNotifier(pushRepo, &cfg.Push)

	convoSvc := service.NewConversationService(convoRepo, userRepo)
	groupSvc := service.NewGroupService(groupRepo, userRepo, hub)
	msgSvc := service.NewMessageService(msgRepo, userRepo, groupRepo, reactRepo, convoSvc, hub, hub, notifier)
	reactSvc := service.NewReactionService(reactRepo, msgRepo, userRepo, groupRepo, hub)

	hub.SetHandler(handler.NewGateway(hub, msgSvc, reactSvc, groupSvc))

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	var files *objectstore.Store
	if cfg.S3.Bucket != "" {
		files, err = objectstore.New(context.Background(), &cfg.S3, cfg.MaxUploadSize)
		if err != nil {
			logger.Errorf("objectstore: %v", err)
			os.Exit(1)
		}
	} else {
		logger.Info("S3_BUCKET not set, file uploads disabled")
	}

	msgH := handler.NewMessageHandler(msgSvc, reactSvc, files, cfg.MaxUploadSize)
	groupH := handler.NewGroupHandler(groupSvc)
	convoH := handler.NewConversationHandler(convoSvc)
	pushH := handler.NewPushHandler(pushRepo, &cfg.Push)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Do not compress WebSocket: the wrapped ResponseWriter would lose
	// http.Hijacker and the upgrade fails with 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/push/vapid-public", pushH.VAPIDPublic)

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(cfg.JWT.Secret))

		r.Get("/api/conversations", convoH.Get)
		r.Get("/api/conversations/{userId}", convoH.HasContact)
		r.Delete("/api/conversations/{userId}", convoH.RemoveContact)

		r.Post("/api/messages", msgH.SendPrivate)
		r.Get("/api/messages/{userId}", msgH.PrivateHistory)
		r.Delete("/api/messages/{messageId}", msgH.Delete)
		r.Post("/api/messages/{messageId}/reactions", msgH.AddReaction)
		r.Get("/api/messages/{messageId}/reactions", msgH.ListReactions)
		r.Delete("/api/messages/{messageId}/reactions/{reactionId}", msgH.RemoveReaction)
		r.Delete("/api/messages/{messageId}/reactions", msgH.RemoveOwnReactions)

		r.Post("/api/groups", groupH.Create)
		r.Get("/api/groups", groupH.ListMine)
		r.Get("/api/groups/{groupId}", groupH.Get)
		r.Put("/api/groups/{groupId}", groupH.Update)
		r.Delete("/api/groups/{groupId}", groupH.Delete)
		r.Get("/api/groups/{groupId}/members", groupH.Members)
		r.Post("/api/groups/{groupId}/members", groupH.AddMember)
		r.Post("/api/groups/{groupId}/leave", groupH.Leave)
		r.Delete("/api/groups/{groupId}/members/{userId}", groupH.RemoveMember)
		r.Put("/api/groups/{groupId}/members/{userId}/role", groupH.UpdateRole)
		r.Post("/api/groups/{groupId}/messages", msgH.SendGroup)
		r.Get("/api/groups/{groupId}/messages", msgH.GroupHistory)

		r.Post("/api/files/upload", msgH.Upload)

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
		logger.Infof("server listening on %s", cfg.ServerAddr)
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
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("list migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "chatline"
		password = "chatline_secret"
		database = "chatline"
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
