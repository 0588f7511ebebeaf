package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"salestrack/internal/domain"
	"salestrack/internal/store"
)

func testSale(item string) domain.Sale {
	return domain.Sale{
		Date:          time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		StoreName:     "Kadıköy",
		CustomerName:  "Ayşe",
		ItemName:      item,
		UnitPrice:     decimal.NewFromInt(10),
		Quantity:      2,
		Total:         decimal.NewFromInt(20),
		Status:        domain.SaleStatusPending,
		PaymentStatus: domain.PaymentUnpaid,
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(repo store.Repository) error {
		if _, err := repo.CreateCustomer(ctx, domain.Customer{Name: "Ayşe", City: "İstanbul"}); err != nil {
			return err
		}
		if _, err := repo.CreateSale(ctx, testSale("Kalem")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	if _, err := s.FindCustomerByName(ctx, "Ayşe"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected customer to be rolled back, got %v", err)
	}
	if count, _ := s.CountSales(ctx, true); count != 0 {
		t.Fatalf("expected no sales after rollback, got %d", count)
	}
}

func TestWithinTxNestedCallJoinsOuter(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(repo store.Repository) error {
		return repo.WithinTx(ctx, func(inner store.Repository) error {
			_, err := inner.CreateSale(ctx, testSale("Kalem"))
			return err
		})
	})
	if err != nil {
		t.Fatalf("nested tx failed: %v", err)
	}
	if count, _ := s.CountSales(ctx, false); count != 1 {
		t.Fatalf("expected 1 sale, got %d", count)
	}
}

func TestRollbackKeepsWritesMadeOutsideTransaction(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")
	now := time.Now().UTC()

	entered := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- s.WithinTx(ctx, func(repo store.Repository) error {
			close(entered)
			if _, err := repo.CreateCustomer(ctx, domain.Customer{Name: "Ayşe", City: "İstanbul"}); err != nil {
				return err
			}
			<-release
			return boom
		})
	}()
	<-entered

	logDone := make(chan error, 1)
	go func() {
		logDone <- s.CreateAuditLog(ctx, domain.AuditLog{ID: "log-1", Action: "IMPORT", CreatedAt: now})
	}()
	select {
	case err := <-logDone:
		t.Fatalf("expected audit write to wait for the open transaction, returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-txDone; !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := <-logDone; err != nil {
		t.Fatalf("create audit log: %v", err)
	}

	logs, err := s.ListAuditLogs(ctx, now.Add(-time.Hour), now.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 || logs[0].ID != "log-1" {
		t.Fatalf("expected audit log to survive the rollback, got %+v", logs)
	}
	if _, err := s.FindCustomerByName(ctx, "Ayşe"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected customer to be rolled back, got %v", err)
	}
}

func TestListSplitRemaindersFollowsParent(t *testing.T) {
	s := New()
	ctx := context.Background()

	parent, err := s.CreateSale(ctx, testSale("Kalem"))
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	remainder := testSale("Kalem")
	remainder.SplitFromID = parent.ID
	if _, err := s.CreateSale(ctx, remainder); err != nil {
		t.Fatalf("create remainder: %v", err)
	}
	if _, err := s.CreateSale(ctx, testSale("Defter")); err != nil {
		t.Fatalf("create unrelated: %v", err)
	}

	got, err := s.ListSplitRemainders(ctx, parent.ID)
	if err != nil {
		t.Fatalf("list remainders: %v", err)
	}
	if len(got) != 1 || got[0].SplitFromID != parent.ID {
		t.Fatalf("expected one remainder of %s, got %+v", parent.ID, got)
	}
}

func TestFindSaleByKeyIgnoresSplitRemainders(t *testing.T) {
	s := New()
	ctx := context.Background()

	remainder := testSale("Kalem")
	remainder.SplitFromID = "sale-original"
	if _, err := s.CreateSale(ctx, remainder); err != nil {
		t.Fatalf("create remainder failed: %v", err)
	}
	key := testSale("Kalem").Key()
	if _, err := s.FindSaleByKey(ctx, key); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected remainder to be invisible to key lookup, got %v", err)
	}

	original, err := s.CreateSale(ctx, testSale("Kalem"))
	if err != nil {
		t.Fatalf("create original failed: %v", err)
	}
	found, err := s.FindSaleByKey(ctx, key)
	if err != nil {
		t.Fatalf("find by key failed: %v", err)
	}
	if found.ID != original.ID {
		t.Fatalf("expected %s, got %s", original.ID, found.ID)
	}
}

func TestMaxSequenceScansNumericSuffix(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, code := range []string{"PRD-0002", "PRD-0010", "PRD-0009", "LEGACY-77"} {
		if _, err := s.CreateProduct(ctx, domain.Product{Code: code, Name: "item " + code}); err != nil {
			t.Fatalf("create product %s failed: %v", code, err)
		}
	}
	highest, err := s.MaxProductSeq(ctx, "PRD-")
	if err != nil {
		t.Fatalf("max product seq failed: %v", err)
	}
	if highest != 10 {
		t.Fatalf("expected 10, got %d", highest)
	}

	if _, err := s.CreateProduct(ctx, domain.Product{Code: "PRD-0010", Name: "other"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate code conflict, got %v", err)
	}
}

func TestSumSalesTotalSkipsDeletedAndRejected(t *testing.T) {
	s := New()
	ctx := context.Background()

	kept, _ := s.CreateSale(ctx, testSale("Kalem"))
	rejected := testSale("Silgi")
	rejected.Status = domain.SaleStatusRejected
	_, _ = s.CreateSale(ctx, rejected)
	deleted, _ := s.CreateSale(ctx, testSale("Defter"))
	now := time.Now().UTC()
	deleted.DeletedAt = &now
	if _, err := s.UpdateSale(ctx, *deleted); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}

	from, to := store.MonthRange(2025, 1)
	sum, err := s.SumSalesTotal(ctx, from, to)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if !sum.Equal(kept.Total) {
		t.Fatalf("expected %s, got %s", kept.Total, sum)
	}
}
