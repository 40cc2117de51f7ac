package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/identity-lifecycle-service/config"
	"github.com/oksasatya/identity-lifecycle-service/internal/application"
	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
	pginfra "github.com/oksasatya/identity-lifecycle-service/internal/infrastructure/postgres"
	"github.com/oksasatya/identity-lifecycle-service/pkg/helpers"
)

// seed populates a development database with one credential identity per
// status plus a social identity. Re-running it is harmless.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pginfra.NewPool(ctx, pginfra.PoolConfig{DSN: cfg.PostgresDSN(), MaxConns: 2, MinConns: 1, MaxConnLife: time.Hour}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()
	if err := pginfra.RunMigrations(cfg.PostgresDSN(), logger); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	svc := application.NewService(pginfra.NewIdentityRepository(pool), logger, nil, nil, application.Options{StoreTimeout: cfg.StoreTimeout})

	hash, err := helpers.HashPassword("password123", cfg.BcryptCost)
	if err != nil {
		logger.WithError(err).Fatal("failed to hash password")
	}

	// path of statuses each seeded identity walks from PENDING_VERIFICATION
	seeds := []struct {
		username string
		path     []entity.Status
	}{
		{"demo_pending", nil},
		{"demo_active", []entity.Status{entity.StatusActive}},
		{"demo_suspended", []entity.Status{entity.StatusActive, entity.StatusSuspended}},
		{"demo_inactive", []entity.Status{entity.StatusInactive}},
	}
	for _, s := range seeds {
		created, err := svc.Create(ctx, entity.CredentialSignup{
			Username:     s.username,
			Email:        s.username + "@example.com",
			PasswordHash: hash,
			FullName:     "Demo " + s.username,
		})
		var dup *entity.DuplicateIdentityError
		if errors.As(err, &dup) {
			logger.WithField("username", s.username).Info("already seeded")
			continue
		}
		if err != nil {
			logger.WithError(err).WithField("username", s.username).Fatal("failed to seed identity")
		}
		for _, st := range s.path {
			if _, err := svc.Transition(ctx, created.ID, st); err != nil {
				logger.WithError(err).WithFields(logrus.Fields{"id": created.ID, "target": st}).Fatal("failed to transition identity")
			}
		}
		fmt.Printf("seeded identity: id=%s username=%s password=password123\n", created.ID, s.username)
	}

	social, err := svc.UpsertSocial(ctx, entity.SocialProfile{
		Provider:    "linkedin",
		ProviderID:  "demo-linkedin-1",
		Email:       "social.demo@example.com",
		FullName:    "Social Demo",
		Headline:    "Seeded social identity",
		ProfileLink: "https://www.linkedin.com/in/social-demo",
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to seed social identity")
	}
	fmt.Printf("seeded social identity: id=%s provider=%s\n", social.ID, social.Provider)
}
