package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"salestrack/internal/domain"
	"salestrack/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("SALESTRACK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SALESTRACK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestWithinTxRollsBackSaleAndCustomer(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	customerName := fmt.Sprintf("IT Customer %d", stamp)
	item := fmt.Sprintf("IT Item %d", stamp)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(repo store.Repository) error {
		customer, err := repo.CreateCustomer(ctx, domain.Customer{Name: customerName, City: "Ankara"})
		if err != nil {
			return err
		}
		_, err = repo.CreateSale(ctx, domain.Sale{
			Date:          time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
			StoreName:     "IT Store",
			CustomerName:  customerName,
			CustomerID:    customer.ID,
			ItemName:      item,
			Quantity:      1,
			Total:         decimal.NewFromInt(10),
			Status:        domain.SaleStatusPending,
			PaymentStatus: domain.PaymentUnpaid,
		})
		if err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if _, err := s.FindCustomerByName(ctx, customerName); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected customer rollback, got %v", err)
	}
}

func TestSaleKeyLookupAndOrderSequence(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	item := fmt.Sprintf("IT Item %d", stamp)
	prefix := fmt.Sprintf("ORD-IT%d-", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE item_name = $1 AND split_from_id IS NOT NULL`, item)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE item_name = $1`, item)
	})

	base := domain.Sale{
		Date:          time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		StoreName:     "IT Store",
		CustomerName:  "IT Buyer",
		ItemName:      item,
		Quantity:      3,
		Total:         decimal.RequireFromString("29.97"),
		Status:        domain.SaleStatusApproved,
		PaymentStatus: domain.PaymentUnpaid,
		OrderNumber:   prefix + "0007",
	}
	created, err := s.CreateSale(ctx, base)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	remainder := base
	remainder.SplitFromID = created.ID
	remainder.OrderNumber = prefix + "0002"
	if _, err := s.CreateSale(ctx, remainder); err != nil {
		t.Fatalf("create remainder: %v", err)
	}

	found, err := s.FindSaleByKey(ctx, base.Key())
	if err != nil {
		t.Fatalf("find by key: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected %s, got %s", created.ID, found.ID)
	}
	if !found.Total.Equal(base.Total) {
		t.Fatalf("expected total %s, got %s", base.Total, found.Total)
	}

	highest, err := s.MaxOrderSeq(ctx, prefix)
	if err != nil {
		t.Fatalf("max order seq: %v", err)
	}
	if highest != 7 {
		t.Fatalf("expected 7, got %d", highest)
	}
}
