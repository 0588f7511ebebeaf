// Command ingest runs workbook imports outside the HTTP server, against the
// configured database or a throwaway in-memory store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"salestrack/internal/cache"
	"salestrack/internal/config"
	"salestrack/internal/domain"
	"salestrack/internal/ingest"
	"salestrack/internal/metrics"
	"salestrack/internal/order"
	"salestrack/internal/resolver"
	"salestrack/internal/sequence"
	"salestrack/internal/service"
	"salestrack/internal/store"
	"salestrack/internal/store/memory"
	pgstore "salestrack/internal/store/postgres"
)

type importOptions struct {
	file    string
	dryRun  bool
	minYear int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(config.Load()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "ingest",
		Short:        "Import legacy sales workbooks and customer rosters",
		SilenceUsage: true,
	}
	root.AddCommand(newLegacyCmd(cfg), newCustomersCmd(cfg))
	return root
}

func newLegacyCmd(cfg config.Config) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "legacy",
		Short: "Import monthly sales sheets from a legacy workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, cfg, opts, func(ctx context.Context, svc *service.Service, data []byte) (any, error) {
				return svc.ImportLegacyData(ctx, data)
			})
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Path to the .xlsx workbook (required)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Import into an in-memory store and only print the summary")
	cmd.Flags().IntVar(&opts.minYear, "min-year", cfg.ImportMinYear, "Skip rows dated before this year")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newCustomersCmd(cfg config.Config) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Merge a customer roster workbook into the customer records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, cfg, opts, func(ctx context.Context, svc *service.Service, data []byte) (any, error) {
				return svc.ImportCustomerRoster(ctx, data)
			})
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Path to the .xlsx roster (required)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Import into an in-memory store and only print the summary")
	opts.minYear = cfg.ImportMinYear
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

type importFunc func(ctx context.Context, svc *service.Service, data []byte) (any, error)

func runImport(cmd *cobra.Command, cfg config.Config, opts importOptions, run importFunc) error {
	ctx := cmd.Context()
	if strings.TrimSpace(opts.file) == "" {
		return fmt.Errorf("--file is required")
	}
	data, err := os.ReadFile(opts.file)
	if err != nil {
		return fmt.Errorf("read %s: %w", opts.file, err)
	}

	repo, closeRepo, err := openRepository(ctx, cfg, opts.dryRun)
	if err != nil {
		return err
	}
	defer closeRepo()

	alloc := sequence.NewLocal()
	defer alloc.Close()

	res := resolver.New(alloc)
	m := metrics.New()
	importer := ingest.NewImporter(repo, res, cache.NewMemoryStoreCache(), m, ingest.Options{
		Keep:      ingest.FromYear(opts.minYear),
		ScanRows:  cfg.ImportHeaderScanRows,
		MaxErrors: cfg.ImportMaxErrors,
		Fallbacks: cfg.ImportColumnOffsets,
	})
	svc := service.New(repo, importer, order.NewManager(repo, alloc, res, nil, m), m)

	actorCtx := service.WithActor(ctx, domain.Actor{Username: "ingest-cli", Role: "admin"})
	summary, err := run(actorCtx, svc, data)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}

func openRepository(ctx context.Context, cfg config.Config, dryRun bool) (store.Repository, func(), error) {
	if dryRun || cfg.DatabaseURL == "" {
		log.Println("[ingest] repository: in-memory")
		return memory.NewSeeded(), func() {}, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	log.Println("[ingest] repository: postgres")
	return pg, func() {
		if err := pg.Close(); err != nil {
			log.Printf("[ingest] WARN: close postgres: %v", err)
		}
	}, nil
}
