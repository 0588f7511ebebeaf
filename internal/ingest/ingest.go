// Package ingest reconciles legacy sales workbooks and customer rosters
// into the record store. A batch only fails as a whole when the workbook
// cannot be read; everything else becomes a diagnostic.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"salestrack/internal/cache"
	"salestrack/internal/domain"
	"salestrack/internal/metrics"
	"salestrack/internal/resolver"
	"salestrack/internal/schema"
	"salestrack/internal/store"
)

const storeCacheTTL = 10 * time.Minute

type Options struct {
	Keep      Keep
	ScanRows  int
	MaxErrors int
	Fallbacks []schema.Fallback
}

// DefaultOptions ingests rows from 2024 onwards with the stock column
// offsets.
func DefaultOptions() Options {
	fallbacks, err := schema.ParseFallbacks(schema.DefaultFallbacks)
	if err != nil {
		panic(err)
	}
	return Options{
		Keep:      FromYear(2024),
		ScanRows:  schema.DefaultScanRows,
		MaxErrors: 50,
		Fallbacks: fallbacks,
	}
}

type Importer struct {
	repo     store.Repository
	resolver *resolver.Resolver
	stores   cache.StoreCache
	metrics  *metrics.Metrics
	opts     Options
}

func NewImporter(repo store.Repository, res *resolver.Resolver, stores cache.StoreCache, m *metrics.Metrics, opts Options) *Importer {
	if stores == nil {
		stores = cache.NoopStoreCache{}
	}
	return &Importer{
		repo:     repo,
		resolver: res,
		stores:   stores,
		metrics:  m,
		opts:     opts,
	}
}

// rowOutcome is what one data row contributed to the batch.
type rowOutcome struct {
	kind            rowKind
	created         bool
	createdCustomer bool
	createdProduct  bool
	month           string
	notes           []string
	err             error
}

// tally is the running state of the row fold.
type tally struct {
	summary domain.ImportSummary
	diag    Diagnostics
}

func (t tally) withRow(sheet string, row int, o rowOutcome) tally {
	switch {
	case o.err != nil:
		t.summary.SkippedRowCount++
		t.diag = t.diag.With(rowMessage(sheet, row, o.err))
	case o.kind == rowBlank:
	case o.kind == rowOutOfScope:
		t.summary.SkippedRowCount++
	default:
		t.summary.ImportedCount++
		if o.created {
			t.summary.CreatedCount++
		} else {
			t.summary.UpdatedCount++
		}
		if o.createdCustomer {
			t.summary.CreatedCustomerCount++
		}
		if o.createdProduct {
			t.summary.CreatedProductCount++
		}
		if !slices.Contains(t.summary.MonthsTouched, o.month) {
			t.summary.MonthsTouched = append(t.summary.MonthsTouched, o.month)
		}
		for _, note := range o.notes {
			t.diag = t.diag.With(rowNote(sheet, row, note))
		}
	}
	return t
}

func (t tally) withSheetError(sheet string, err error) tally {
	t.diag = t.diag.With(sheetMessage(sheet, err))
	return t
}

func (t tally) finish() domain.ImportSummary {
	s := t.summary
	slices.Sort(s.MonthsTouched)
	s.Errors = t.diag.Messages
	s.TruncatedErrorCount = t.diag.Truncated
	return s
}

// ImportLegacyData reconciles every "<YYYY> <Month>" sheet of a workbook.
// Rows are processed in order, each in its own transaction, so a later row
// sees the customers and products created by earlier ones.
func (i *Importer) ImportLegacyData(ctx context.Context, data []byte) (domain.ImportSummary, error) {
	sheets, err := ReadWorkbook(data, IsMonthSheet)
	if err != nil {
		return domain.ImportSummary{}, err
	}

	profile := schema.LegacyProfile(i.opts.ScanRows, i.opts.Fallbacks)
	t := tally{
		summary: domain.ImportSummary{SheetsProcessed: []string{}, MonthsTouched: []string{}},
		diag:    NewDiagnostics(i.opts.MaxErrors),
	}

	for _, sheet := range sheets {
		sch, err := schema.Detect(sheet.Rows, profile)
		if err != nil {
			log.Printf("[ingest] WARN: skip sheet %q: %v", sheet.Name, err)
			t = t.withSheetError(sheet.Name, err)
			continue
		}
		if inferred := sch.Inferred(); len(inferred) > 0 {
			log.Printf("[ingest] sheet %q: inferred columns %v", sheet.Name, inferred)
		}
		t.summary.SheetsProcessed = append(t.summary.SheetsProcessed, sheet.Name)

		for idx := sch.HeaderRow + 1; idx < len(sheet.Rows); idx++ {
			// row numbers in diagnostics are 1-based like the spreadsheet UI
			outcome := i.importRow(ctx, sch, sheet.Rows[idx])
			if outcome.err != nil && len(t.diag.Messages) < t.diag.Max {
				log.Printf("[ingest] WARN: sheet %q row %d: %v", sheet.Name, idx+1, outcome.err)
			}
			t = t.withRow(sheet.Name, idx+1, outcome)
		}
	}

	summary := t.finish()
	i.metrics.ImportRows(summary.CreatedCount, summary.UpdatedCount, summary.SkippedRowCount)
	i.metrics.Diagnostics(len(summary.Errors) + summary.TruncatedErrorCount)
	log.Printf("[ingest] legacy import: %d imported (%d new), %d skipped, %d errors",
		summary.ImportedCount, summary.CreatedCount, summary.SkippedRowCount, len(summary.Errors)+summary.TruncatedErrorCount)
	return summary, nil
}

func (i *Importer) importRow(ctx context.Context, sch schema.SheetSchema, cells []string) rowOutcome {
	sale, kind, err := parseSaleRow(sch, cells, i.opts.Keep)
	if err != nil || kind != rowSale {
		return rowOutcome{kind: kind, err: err}
	}

	if sale.StoreCode != "" {
		st, err := i.lookupStore(ctx, sale.StoreCode)
		if err != nil {
			return rowOutcome{kind: kind, err: err}
		}
		if st != nil {
			sale.EnrichFromStore(*st)
		}
	}

	outcome := rowOutcome{kind: kind, month: sale.Date.Format("2006-01")}
	err = i.repo.WithinTx(ctx, func(repo store.Repository) error {
		res, err := i.upsertSale(ctx, repo, sale)
		if err != nil {
			return err
		}
		outcome.created = res.created
		outcome.createdCustomer = res.createdCustomer
		outcome.createdProduct = res.createdProduct
		outcome.notes = res.notes
		return nil
	})
	if err != nil {
		return rowOutcome{kind: kind, err: err}
	}
	if outcome.createdProduct {
		i.metrics.Allocated("product")
	}
	return outcome
}

type saleUpsert struct {
	created         bool
	createdCustomer bool
	createdProduct  bool
	notes           []string
}

// upsertSale resolves the row's master records and then updates the sale
// with the same natural key, or inserts it.
func (i *Importer) upsertSale(ctx context.Context, repo store.Repository, sale domain.Sale) (saleUpsert, error) {
	var res saleUpsert
	if sale.CustomerName != "" {
		customer, created, err := i.resolver.ResolveCustomer(ctx, repo, sale.CustomerName, resolver.CustomerHint{
			City:      sale.City,
			StoreCode: sale.StoreCode,
		})
		if err != nil {
			return saleUpsert{}, err
		}
		sale.CustomerID = customer.ID
		res.createdCustomer = created
	}

	product, createdProduct, err := i.resolver.ResolveProduct(ctx, repo, sale.ItemName, sale.UnitPrice)
	if err != nil {
		return saleUpsert{}, err
	}
	sale.ProductID = product.ID
	res.createdProduct = createdProduct

	existing, err := repo.FindSaleByKey(ctx, sale.Key())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return saleUpsert{}, err
	}
	if existing != nil {
		remainders, err := splitRemainders(ctx, repo, existing.ID)
		if err != nil {
			return saleUpsert{}, fmt.Errorf("load remainders of %s: %w", existing.ID, err)
		}
		merged, notes := applyReimport(*existing, sale, remainders)
		if _, err := repo.UpdateSale(ctx, merged); err != nil {
			return saleUpsert{}, fmt.Errorf("update sale %s: %w", existing.ID, err)
		}
		res.notes = notes
		return res, nil
	}

	if _, err := repo.CreateSale(ctx, sale); err != nil {
		return saleUpsert{}, fmt.Errorf("create sale: %w", err)
	}
	res.created = true
	return res, nil
}

// splitRemainders walks every sale split off rootID, including remainders
// of remainders.
func splitRemainders(ctx context.Context, repo store.Repository, rootID string) ([]domain.Sale, error) {
	var family []domain.Sale
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children, err := repo.ListSplitRemainders(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			family = append(family, child)
			queue = append(queue, child.ID)
		}
	}
	return family, nil
}

func (i *Importer) lookupStore(ctx context.Context, code string) (*domain.Store, error) {
	if st, ok, err := i.stores.Get(ctx, code); err != nil {
		log.Printf("[ingest] WARN: store cache get %s: %v", code, err)
	} else if ok {
		return st, nil
	}

	st, err := i.repo.GetStoreByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load store %s: %w", code, err)
	}
	if err := i.stores.Set(ctx, *st, storeCacheTTL); err != nil {
		log.Printf("[ingest] WARN: store cache set %s: %v", code, err)
	}
	return st, nil
}
