package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/olymp/arena/internal/api/handlers"
	"github.com/olymp/arena/internal/config"
	"github.com/olymp/arena/internal/database"
	"github.com/olymp/arena/internal/migrations"
	"github.com/olymp/arena/internal/models"
	"github.com/olymp/arena/internal/problems"
	"github.com/olymp/arena/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migrations.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	var seeder store.Seeder = store.NewPostgres(db)

	if os.Getenv("SEED_PROBLEMS") != "false" {
		bank := problems.StarterBank()
		for i := range bank {
			if err := seeder.CreateProblem(ctx, &bank[i]); err != nil {
				log.Fatalf("Failed to create problem %q: %v", bank[i].Title, err)
			}
		}
		log.Printf("✓ %d problems created", len(bank))
	}

	names := os.Getenv("SEED_PLAYERS")
	if names == "" {
		names = "alice,bob"
		log.Printf("Using default players: %s", names)
	}

	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p := &models.Player{Username: name, Rating: cfg.DefaultRating}
		if err := seeder.CreatePlayer(ctx, p); err != nil {
			log.Fatalf("Failed to create player %s: %v", name, err)
		}
		token, err := handlers.IssueToken(cfg.JWTSecret, p.ID, 30*24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to sign token for %s: %v", name, err)
		}
		log.Printf("✓ Player %s (id=%d, rating=%d)", p.Username, p.ID, p.Rating)
		log.Printf("  Token: %s", token)
	}
}
