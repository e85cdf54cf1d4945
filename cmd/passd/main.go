package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manoloenriquez/vault7641/internal/chain"
	"github.com/manoloenriquez/vault7641/internal/compositor"
	"github.com/manoloenriquez/vault7641/internal/config"
	"github.com/manoloenriquez/vault7641/internal/metacache"
	"github.com/manoloenriquez/vault7641/internal/rendercache"
	"github.com/manoloenriquez/vault7641/internal/server"
	"github.com/manoloenriquez/vault7641/internal/token"
	"github.com/manoloenriquez/vault7641/internal/traits"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Derivation table + assets (fatal on any gap, before serving) ──────────
	table := traits.DefaultTable()
	resolver, err := traits.NewResolver(table)
	if err != nil {
		log.Fatal("trait table invalid", zap.Bool("config_error", true), zap.Error(err))
	}
	assets, err := compositor.LoadAssets(os.DirFS(cfg.Generator.AssetDir))
	if err != nil {
		log.Fatal("asset load failed", zap.Bool("config_error", true), zap.Error(err))
	}
	if err := assets.Validate(table, cfg.Generator.CanvasSize); err != nil {
		log.Fatal("asset set incomplete", zap.Bool("config_error", true), zap.Error(err))
	}
	comp := compositor.New(resolver, assets, cfg.Generator.CanvasSize)
	log.Info("asset set loaded",
		zap.Int("layers", assets.Len()),
		zap.Int("canvas", cfg.Generator.CanvasSize),
		zap.Int("derivation_version", traits.DerivationVersion),
	)

	// ── Mint-pass verifier ────────────────────────────────────────────────────
	secret, err := cfg.SecretKey()
	if err != nil {
		log.Fatal("invalid MINT_PASS_SECRET", zap.Error(err))
	}
	verifier := token.NewVerifier(secret)

	// ── Chain reader + metadata cache + prefetcher ────────────────────────────
	reader, err := chain.Dial(cfg.Chain.RPCURL, common.HexToAddress(cfg.Chain.ContractAddress))
	if err != nil {
		log.Fatal("chain dial failed", zap.Error(err))
	}
	cache := metacache.New(time.Duration(cfg.Generator.MetadataTTLSec) * time.Second)
	prefetch := metacache.NewPrefetcher(cache, reader.CollectionFetch, log)

	// ── Render-result cache ───────────────────────────────────────────────────
	frames := rendercache.New(rdb, time.Duration(cfg.Generator.RenderCacheTTLSec)*time.Second, log)

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api := r.Group("/api")
	server.NewGenerateHandler(verifier, resolver, comp, frames, rendercache.Key,
		cfg.Generator.RenderConcurrency, log).Register(api)
	server.NewWalletHandler(cache, prefetch, reader.CollectionFetch, log).Register(api)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}
