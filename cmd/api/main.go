package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasknest.org/internal/config"
	"tasknest.org/internal/events"
	"tasknest.org/internal/httpapi"
	"tasknest.org/internal/identity"
	"tasknest.org/internal/mail"
	"tasknest.org/internal/membership"
	"tasknest.org/internal/obs"
	"tasknest.org/internal/registry"
	"tasknest.org/internal/session"
	"tasknest.org/internal/store/pg"
	"tasknest.org/internal/token"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	obs.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores: Postgres when a DSN is configured, in-memory otherwise (dev).
	var (
		principals   identity.PrincipalStore
		refreshCreds token.RefreshCredentialStore
		revoked      token.RevokedTokenStore
		members      membership.Store
		probe        httpapi.ReadyProbe
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		principals = store.Principals()
		refreshCreds = store.Tokens()
		revoked = store.Tokens()
		members = store.Memberships()
		probe = httpapi.ReadyProbe{DB: store.DB()}
		go store.Tokens().RunPurge(ctx, time.Hour)
	} else {
		log.Println("no TASKNEST_PG_DSN set, using in-memory stores")
		principals = identity.NewInMemory()
		refreshCreds = token.NewMemoryRefresh()
		revoked = token.NewMemoryRevoked()
		members = membership.NewInMemory()
	}

	notifier := mail.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From)

	idsvc, err := identity.NewService(principals, notifier,
		identity.WithAdminAllowlist(cfg.AdminAllowlist))
	if err != nil {
		log.Fatalf("identity: %v", err)
	}
	authority, err := token.NewAuthority(cfg.AccessSecret, cfg.RefreshSecret, refreshCreds, revoked,
		token.WithAccessTTL(cfg.AccessTTL),
		token.WithRefreshTTL(cfg.RefreshTTL))
	if err != nil {
		log.Fatalf("token authority: %v", err)
	}
	guard, err := session.NewGuard(authority, principals)
	if err != nil {
		log.Fatalf("session guard: %v", err)
	}
	ledger, err := membership.NewLedger(members, principals)
	if err != nil {
		log.Fatalf("membership ledger: %v", err)
	}

	reg := registry.New(principals)
	bus := events.NewBus()
	go reg.Run(ctx, cfg.HeartbeatPeriod)
	go events.Pump(ctx, bus, reg)

	api := httpapi.New(probe, version, guard, authority, idsvc, ledger, reg, bus, cfg.PublicURL)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting tasknest-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}
