package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"salestrack/internal/cache"
	"salestrack/internal/config"
	"salestrack/internal/httpapi"
	"salestrack/internal/ingest"
	"salestrack/internal/metrics"
	"salestrack/internal/notify"
	"salestrack/internal/order"
	"salestrack/internal/resolver"
	"salestrack/internal/sequence"
	"salestrack/internal/service"
	"salestrack/internal/store"
	"salestrack/internal/store/memory"
	pgstore "salestrack/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("postgres migration failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	var (
		alloc      sequence.Allocator
		notifier   notify.Notifier = notify.LogNotifier{}
		storeCache cache.StoreCache
	)
	local := sequence.NewLocal()
	defer local.Close()
	alloc = local
	storeCache = cache.NewMemoryStoreCache()

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable (%v), using in-process sequences and cache", err)
			_ = client.Close()
		} else {
			alloc = sequence.NewRedis(client)
			notifier = notify.NewRedisPublisher(client)
			storeCache = cache.NewRedisStoreCache(client)
			closers = append(closers, client.Close)
			log.Println("sequences and cache: redis")
		}
	} else {
		log.Println("sequences and cache: in-process")
	}

	m := metrics.New()
	res := resolver.New(alloc)
	dispatcher := notify.NewDispatcher(notifier, cfg.NotifyTimeout, 256)

	importer := ingest.NewImporter(repo, res, storeCache, m, ingest.Options{
		Keep:      ingest.FromYear(cfg.ImportMinYear),
		ScanRows:  cfg.ImportHeaderScanRows,
		MaxErrors: cfg.ImportMaxErrors,
		Fallbacks: cfg.ImportColumnOffsets,
	})
	orders := order.NewManager(repo, alloc, res, dispatcher, m)
	svc := service.New(repo, importer, orders, m)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	if err := auth.BootstrapAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}
	api := httpapi.New(svc, auth, m, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("sales tracking backend listening on %s", cfg.Address())
	if err := serve(runCtx, server, dispatcher.Run, 8*time.Second); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// serve runs server and the event dispatcher until ctx ends or the server
// fails. The dispatcher keeps its own context and is only told to drain
// after Shutdown returns, so events queued by in-flight requests still go
// out.
func serve(ctx context.Context, server httpServer, dispatch func(context.Context) error, grace time.Duration) error {
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return dispatch(dispatchCtx)
	})
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		defer stopDispatch()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AdminPassword != "" && len(cfg.AdminPassword) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be at least 8 characters")
	}
	if cfg.ImportMinYear < 1900 || cfg.ImportMinYear > 2100 {
		return fmt.Errorf("IMPORT_MIN_YEAR %d is out of range", cfg.ImportMinYear)
	}
	return nil
}
