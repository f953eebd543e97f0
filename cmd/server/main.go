package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/olymp/arena/internal/api"
	"github.com/olymp/arena/internal/api/handlers"
	"github.com/olymp/arena/internal/config"
	"github.com/olymp/arena/internal/database"
	"github.com/olymp/arena/internal/game"
	"github.com/olymp/arena/internal/middleware"
	"github.com/olymp/arena/internal/migrations"
	"github.com/olymp/arena/internal/models"
	"github.com/olymp/arena/internal/problems"
	"github.com/olymp/arena/internal/redis"
	"github.com/olymp/arena/internal/store"
	"github.com/olymp/arena/internal/ws"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		st     store.Store
		picker problems.Picker
	)
	switch cfg.StoreDriver {
	case "memory":
		mem := store.NewMemory()
		static := problems.NewStaticPicker(nil)
		seedMemory(ctx, mem, static, cfg)
		st, picker = mem, static
		log.Println("[DB] Using in-memory store (single instance only)")

	default:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if cfg.MigrateOnStart {
			log.Println("↗ Running DB migrations on startup...")
			if err := migrations.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}
		st, picker = store.NewPostgres(db), problems.NewSQLPicker(db)
	}

	engine := game.NewEngine(st, picker, clockwork.NewRealClock(), game.SettingsFromConfig(cfg))
	hub := ws.NewHub(engine, middleware.CheckOrigin(cfg))

	if cfg.RedisURL != "" {
		rdb, err := redis.Connect(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		hub.SetRedisClient(rdb)
		hub.StartEventSubscriber(ctx)
	} else {
		log.Println("[WS] REDIS_URL not set; broadcasts stay on this instance")
	}

	sweeper := game.NewSweeper(engine,
		time.Duration(cfg.SweeperIntervalSecs)*time.Second,
		time.Duration(cfg.QueueExpiryMinutes)*time.Minute)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("Failed to start sweeper: %v", err)
	}
	defer sweeper.Stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, engine, hub, cfg)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	go func() {
		log.Printf("Starting arena server on port %s", port)
		if err := router.Run(":" + port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
}

// seedMemory loads the starter problems and two demo players so the
// in-memory store is usable straight away.
func seedMemory(ctx context.Context, mem *store.Memory, picker *problems.StaticPicker, cfg *config.Config) {
	for _, prob := range problems.StarterBank() {
		if err := mem.CreateProblem(ctx, &prob); err != nil {
			log.Fatalf("seed problem: %v", err)
		}
		picker.Add(prob)
	}
	for _, name := range []string{"alice", "bob"} {
		p := &models.Player{Username: name, Rating: cfg.DefaultRating}
		if err := mem.CreatePlayer(ctx, p); err != nil {
			log.Fatalf("seed player: %v", err)
		}
		token, err := handlers.IssueToken(cfg.JWTSecret, p.ID, 24*time.Hour)
		if err != nil {
			log.Fatalf("sign token: %v", err)
		}
		log.Printf("[DEV] player %s (id=%d) token: %s", p.Username, p.ID, token)
	}
}
