package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opticore.org/internal/audit"
	"opticore.org/internal/auth"
	"opticore.org/internal/config"
	"opticore.org/internal/httpapi"
	"opticore.org/internal/obs"
	"opticore.org/internal/perm"
	"opticore.org/internal/store/pg"
	"opticore.org/internal/twofactor"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("config: DATABASE_URL must be set")
	}

	pgStore, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db := pgStore.DB()

	authService, err := auth.NewService(auth.NewPGStore(db),
		auth.WithSessionTTL(cfg.SessionLifetime()),
		auth.WithBcryptCost(cfg.BcryptCost),
	)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	permStore := perm.NewPGStore(db)
	engine := perm.NewEngine(permStore)

	twoFactor, err := twofactor.NewService(twofactor.NewPGStore(db), cfg.TwoFactorIssuer)
	if err != nil {
		log.Fatalf("twofactor: %v", err)
	}
	gate := twofactor.NewGate(twoFactor, cfg.StepUpRoleSet())

	auditStore := audit.NewPGStore(db)
	pipeline := audit.NewPipeline(auditStore,
		audit.WithQueueSize(cfg.AuditQueueSize),
		audit.WithRetentionYears(cfg.AuditRetentionYears),
	)

	api := httpapi.New(httpapi.Deps{
		Auth:       authService,
		AuthStore:  auth.NewPGStore(db),
		Perms:      engine,
		PermStore:  permStore,
		TwoFactor:  twoFactor,
		Gate:       gate,
		Audit:      pipeline,
		AuditStore: auditStore,
		Records:    pg.NewRecordStore(pgStore),
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Version:    version,
		BcryptCost: cfg.BcryptCost,
	})

	handler := httpapi.RateLimit(api.Handler(), cfg.RateLimitBurst, cfg.RateLimitPerSecond)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting opticore-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	// Drain the audit queue before the pool goes away.
	pipeline.Close()
	_ = pgStore.Close()
	log.Println("Stopped")
}
