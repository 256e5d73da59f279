// cmd/web/main.go
//
// University profile engine, HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Bootstrap console logger so config errors are visible.
//
//  2. Optional Vault client, then layered config (`vault:` refs resolved).
//
//  3. Daily rotating file logger (tees to console in a TTY).
//
//  4. Field registry.  An inconsistent registry is fatal.
//
//  5. MySQL pool, then the profile cache backend (Redis or in-memory).
//
//  6. Stores, derivation engine, claim dispatcher, coordinator, facade.
//
//  7. chi router with /metrics, served until SIGINT or SIGTERM, then the
//     claim queue is drained and the cache sweeper stopped.
//
// Large comment blocks are framed by blank "//" lines; inline comments use
// a single "//".
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yanizio/uniprofile/internal/acl"
	"github.com/yanizio/uniprofile/internal/api"
	"github.com/yanizio/uniprofile/internal/apperr"
	"github.com/yanizio/uniprofile/internal/block"
	"github.com/yanizio/uniprofile/internal/claim"
	"github.com/yanizio/uniprofile/internal/config"
	"github.com/yanizio/uniprofile/internal/content"
	"github.com/yanizio/uniprofile/internal/database"
	"github.com/yanizio/uniprofile/internal/derive"
	"github.com/yanizio/uniprofile/internal/dualwrite"
	"github.com/yanizio/uniprofile/internal/logger"
	_ "github.com/yanizio/uniprofile/internal/metrics"
	"github.com/yanizio/uniprofile/internal/payload"
	"github.com/yanizio/uniprofile/internal/profile"
	"github.com/yanizio/uniprofile/internal/registry"
	"github.com/yanizio/uniprofile/internal/requestinfo"
	"github.com/yanizio/uniprofile/internal/server"
	"github.com/yanizio/uniprofile/internal/university"
	"github.com/yanizio/uniprofile/internal/vault"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	boot, _ := zap.NewDevelopment()
	zap.ReplaceGlobals(boot)

	//
	// ── 1.  Secrets and configuration ──────────────────────────────────
	//
	var secrets config.Secrets
	if os.Getenv("VAULT_ADDR") != "" {
		vc, err := vault.New(ctx, boot, 15*time.Minute)
		if err != nil {
			log.Fatalf("vault: %v", err)
		}
		secrets = vc
	}
	cfg, err := config.Load(ctx, secrets)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.Paths.Root, runningInTTY(), os.Getenv("ZAP_LEVEL"))
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	//
	// ── 2.  Field registry ─────────────────────────────────────────────
	//
	reg, err := registry.Default()
	if err != nil {
		var ce *apperr.ConfigurationError
		if errors.As(err, &ce) {
			lg.Fatal("field registry inconsistent", zap.Strings("problems", ce.Problems))
		}
		lg.Fatal("field registry", zap.Error(err))
	}

	//
	// ── 3.  Database and cache backend ─────────────────────────────────
	//
	db, err := database.Open(ctx, cfg.Database.DSNWithPassword(), cfg.Database.MaxOpen, cfg.Database.MaxIdle)
	if err != nil {
		lg.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()
	lg.Info("database online")

	var kv profile.KVStore
	switch cfg.Cache.Backend {
	case "redis":
		rc := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			// Reads degrade to database loads until Redis returns.
			lg.Warn("redis unreachable at boot", zap.Error(apperr.Degraded("redis", err)))
		}
		kv = profile.NewRedisStore(rc)
	default:
		mem := profile.NewMemoryStore(cfg.Cache.MaxEntries, cfg.Cache.SweepInterval)
		defer mem.Close()
		kv = mem
	}

	//
	// ── 4.  Components ─────────────────────────────────────────────────
	//
	unis := university.NewStore(db)
	blockRepo := block.NewRepository(db)
	profiles := profile.NewService(reg, kv, unis, blockRepo, cfg.Cache.TTL, lg.Named("profile"))
	blocks := block.NewStore(blockRepo, reg, unis, profiles, block.NewSQLMedia(db), lg.Named("block"))

	validator, err := payload.NewValidator(reg)
	if err != nil {
		lg.Fatal("payload schemas", zap.Error(err))
	}

	claims := claim.NewStore(db)
	dispatcher := claim.NewDispatcher(claims, cfg.Claims.QueueSize, cfg.Claims.Timeout, lg.Named("claim"))
	promoter := claim.NewPromoter(reg, claims, unis, profiles, lg.Named("claim"))

	engine := derive.NewEngine(derive.WithLogger(lg.Named("derive")))
	coord := dualwrite.New(reg, engine, unis, blockRepo, dispatcher, profiles, lg.Named("dualwrite"))
	facade := content.New(reg, validator, coord, blocks, profiles, lg.Named("content"))

	origins, err := requestinfo.Open(cfg.Geo.GeoIPPath)
	if err != nil {
		lg.Warn("geoip database unavailable, origins carry no location", zap.Error(err))
		origins, _ = requestinfo.Open("")
	}
	defer origins.Close()

	//
	// ── 5.  HTTP ───────────────────────────────────────────────────────
	//
	router := api.NewRouter(api.Deps{
		Content:      facade,
		Reviewer:     promoter,
		Queue:        claims,
		Roles:        acl.NewStore(db),
		Origins:      origins,
		EditorHeader: cfg.HTTP.EditorHeader,
		Log:          lg.Named("api"),
	})

	if err := server.Run(ctx, server.New(cfg.HTTP.ListenAddr, router), 10*time.Second, lg); err != nil {
		lg.Error("http server", zap.Error(err))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dispatcher.Close(drainCtx); err != nil {
		lg.Warn("claim queue not fully drained", zap.Error(err))
	}
	lg.Info("profile engine stopped")
}
