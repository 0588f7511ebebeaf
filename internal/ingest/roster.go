package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"salestrack/internal/domain"
	"salestrack/internal/normalize"
	"salestrack/internal/resolver"
	"salestrack/internal/schema"
	"salestrack/internal/store"
)

// ImportCustomerRoster builds customer records from contact-list sheets.
// Existing customers are only ever enriched.
func (i *Importer) ImportCustomerRoster(ctx context.Context, data []byte) (domain.RosterSummary, error) {
	sheets, err := ReadWorkbook(data, nil)
	if err != nil {
		return domain.RosterSummary{}, err
	}

	profile := schema.RosterProfile(i.opts.ScanRows)
	summary := domain.RosterSummary{}
	diag := NewDiagnostics(i.opts.MaxErrors)

	for _, sheet := range sheets {
		sch, err := schema.Detect(sheet.Rows, profile)
		if err != nil {
			log.Printf("[ingest] WARN: skip roster sheet %q: %v", sheet.Name, err)
			diag = diag.With(sheetMessage(sheet.Name, err))
			continue
		}

		for idx := sch.HeaderRow + 1; idx < len(sheet.Rows); idx++ {
			observed, ok := parseRosterRow(sch, sheet.Rows[idx])
			if !ok {
				continue
			}
			summary.ProcessedCount++

			created, updated, err := i.upsertCustomer(ctx, observed)
			switch {
			case err != nil:
				diag = diag.With(rowMessage(sheet.Name, idx+1, err))
			case created:
				summary.CreatedCount++
			case updated:
				summary.UpdatedCount++
			}
		}
	}

	summary.Errors = diag.Messages
	summary.TruncatedErrorCount = diag.Truncated
	i.metrics.Diagnostics(len(diag.Messages) + diag.Truncated)
	log.Printf("[ingest] roster import: %d processed, %d created, %d updated",
		summary.ProcessedCount, summary.CreatedCount, summary.UpdatedCount)
	return summary, nil
}

func parseRosterRow(sch schema.SheetSchema, cells []string) (domain.Customer, bool) {
	name := normalize.CleanText(sch.Cell(cells, schema.ColCustomer))
	if name == "" {
		return domain.Customer{}, false
	}

	customer := domain.Customer{
		Name:         name,
		City:         normalize.NormalizeCityName(sch.Cell(cells, schema.ColCity)),
		StoreCode:    strings.TrimSpace(sch.Cell(cells, schema.ColStoreCode)),
		ContactName:  normalize.TitleCaseLocale(normalize.CleanText(sch.Cell(cells, schema.ColContactName))),
		ContactTitle: normalize.CleanText(sch.Cell(cells, schema.ColContactTitle)),
		Phone:        normalize.CleanText(sch.Cell(cells, schema.ColPhone)),
		Email:        strings.ToLower(strings.TrimSpace(sch.Cell(cells, schema.ColEmail))),
	}
	if registered, ok := normalize.ParseFlexibleDate(sch.Cell(cells, schema.ColDate)); ok {
		customer.RegisteredAt = &registered
	}
	return customer, true
}

func (i *Importer) upsertCustomer(ctx context.Context, observed domain.Customer) (bool, bool, error) {
	var created, updated bool
	err := i.repo.WithinTx(ctx, func(repo store.Repository) error {
		existing, err := repo.FindCustomerByName(ctx, observed.Name)
		if errors.Is(err, store.ErrNotFound) {
			if _, err := repo.CreateCustomer(ctx, observed); err != nil {
				return fmt.Errorf("create customer %s: %w", observed.Name, err)
			}
			created = true
			return nil
		}
		if err != nil {
			return err
		}

		merged, changed := resolver.MergeCustomer(*existing, observed)
		if !changed {
			return nil
		}
		if _, err := repo.UpdateCustomer(ctx, merged); err != nil {
			return fmt.Errorf("update customer %s: %w", observed.Name, err)
		}
		updated = true
		return nil
	})
	return created, updated, err
}
