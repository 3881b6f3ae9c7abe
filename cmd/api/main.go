package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vertyll/fastprod-auth/internal/audit"
	"github.com/vertyll/fastprod-auth/internal/auth"
	"github.com/vertyll/fastprod-auth/internal/config"
	"github.com/vertyll/fastprod-auth/internal/httpapi"
	"github.com/vertyll/fastprod-auth/internal/mail"
	"github.com/vertyll/fastprod-auth/internal/obs"
	"github.com/vertyll/fastprod-auth/internal/store/pg"
	"github.com/vertyll/fastprod-auth/internal/store/redisstore"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := pg.Open(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	keys, err := auth.ParseKeyring(cfg.Auth.Keys)
	if err != nil {
		log.Fatalf("keyring: %v", err)
	}

	// Without Redis each instance keeps a local revocation set; that is only
	// correct for single-instance deployments.
	var revoked auth.RevocationSet = auth.NewMemoryRevocations()
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		redisSet, err := redisstore.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisSet.Close()
		revoked = redisSet
	}

	var mailer auth.Mailer = mail.LogMailer{}
	if cfg.SMTP.Host != "" {
		mailer = mail.NewSMTP(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	}

	recorder := audit.NewRecorder(audit.NewLogSink(), store.AuditSink())

	// A cyclic role hierarchy is a deploy-time configuration error; refuse to
	// start rather than serve requests with an unresolvable graph.
	resolver, err := auth.NewResolver(context.Background(), store.Roles())
	if err != nil {
		log.Fatalf("role hierarchy: %v", err)
	}

	tokens, err := auth.NewTokenService(store.Identities(), store.RefreshTokens(), resolver, revoked, keys,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
		auth.WithAudit(recorder),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	accounts, err := auth.NewAccountService(store.Identities(), store.Roles(), store.VerificationTokens(), tokens, mailer,
		auth.WithDefaultRole(cfg.Auth.DefaultRole),
		auth.WithVerificationTTL(cfg.Auth.VerificationTTL),
		auth.WithAccountAudit(recorder),
	)
	if err != nil {
		log.Fatalf("account service: %v", err)
	}
	resets, err := auth.NewResetOrchestrator(store.Identities(), store.ResetTokens(), tokens, mailer,
		auth.WithResetTTL(cfg.Auth.ResetTTL),
		auth.WithResetAudit(recorder),
	)
	if err != nil {
		log.Fatalf("reset orchestrator: %v", err)
	}
	admin, err := auth.NewAdmin(store.Roles(), resolver)
	if err != nil {
		log.Fatalf("admin service: %v", err)
	}

	if err := store.EnsurePermissions(context.Background(), auth.BuiltinPermissions); err != nil {
		log.Fatalf("seed permissions: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Tokens:     tokens,
		Resolver:   resolver,
		Accounts:   accounts,
		Resets:     resets,
		Admin:      admin,
		Audit:      recorder,
		Ready:      httpapi.ReadyProbe{DB: store.DB()},
		Version:    version,
		MaxBody:    cfg.HTTP.MaxBodyBytes,
		RateRPS:    cfg.RateLimit.RPS,
		RateBurst:  cfg.RateLimit.Burst,
		EnableCORS: cfg.IsDev(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	obs.Log("info", "starting fastprod-auth", map[string]any{
		"version": version,
		"addr":    srv.Addr,
		"env":     cfg.Env,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	obs.Log("info", "shutting down", nil)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
	obs.Log("info", "stopped", nil)
}
