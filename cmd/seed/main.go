package main

import (
	"context"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/oksasatya/biolink/config"
	"github.com/oksasatya/biolink/db/migrations"
	"github.com/oksasatya/biolink/internal/domain/entity"
	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/repository"
	pginfra "github.com/oksasatya/biolink/internal/infrastructure/postgres"
	"github.com/oksasatya/biolink/pkg/helpers"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env, cfg.LogLevel)
	ctx := context.Background()

	if err := pginfra.RunMigrations(cfg.PostgresDSN(), migrations.FS, logger); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	pool, err := pginfra.NewPool(ctx, pginfra.PoolConfig{
		DSN:         cfg.PostgresDSN(),
		MaxConns:    2,
		MinConns:    1,
		MaxConnLife: cfg.DBMaxConnLife,
	})
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	client := pginfra.NewClient(pool,
		pginfra.WithLogger(logger),
		pginfra.WithOmit("User", "password"),
		pginfra.WithMiddleware(
			pginfra.ValidationMiddleware(validator.New()),
			pginfra.PasswordMiddleware(),
		),
	)

	email := "demo@biolink.local"
	password := "password123"
	var user *entity.User
	err = client.Transaction(ctx, func(tx repository.Client) error {
		user, err = tx.User().Upsert(ctx, query.UpsertArgs{
			Where:  query.Unique{"email": email},
			Create: demoProfile(email, password),
			Update: query.Data{"bio": "Links, colors and a status line."},
			Include: query.Include{
				query.CountKey: nil,
			},
		})
		return err
	})
	if err != nil {
		log.Fatalf("failed to seed profile: %v", err)
	}
	fmt.Printf("seeded user: id=%s email=%s userName=%s password=%s\n", user.ID, user.Email, user.UserName, password)
	if user.Count != nil {
		fmt.Printf("relations: links=%d labels=%d socialIcons=%d backgroundColors=%d neonColors=%d\n",
			user.Count.Links, user.Count.Labels, user.Count.SocialIcons, user.Count.BackgroundColors, user.Count.NeonColors)
	}
}

// demoProfile is a user with one row of every relation, created in one
// nested write.
func demoProfile(email, password string) query.Data {
	return query.Data{
		"userName":      "demo",
		"name":          "Demo User",
		"email":         email,
		"password":      password,
		"bio":           "Links, colors and a status line.",
		"location":      "Jakarta",
		"glowUsername":  true,
		"role":          string(entity.RoleAdmin),
		"cosmetic":      query.CreateNested(query.Data{"flair": "early", "theme": "midnight"}),
		"statusbar":     query.CreateNested(query.Data{"text": "online", "colorBg": "#111111", "colorText": "#eeeeee"}),
		"links": query.CreateNested(
			query.Data{"url": "https://github.com/oksasatya", "text": "GitHub", "showIconOnHover": true},
			query.Data{"url": "https://example.com/blog", "text": "Blog"},
		),
		"labels":           query.CreateNested(query.Data{"data": "developer", "color": "#5865f2"}),
		"socialIcons":      query.CreateNested(query.Data{"url": "https://x.com/demo", "icon": "x"}),
		"backgroundColors": query.CreateNested(query.Data{"color": "#0f0c29"}, query.Data{"color": "#302b63"}),
		"neonColors":       query.CreateNested(query.Data{"color": "#ff00ff"}),
	}
}
