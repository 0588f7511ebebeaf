package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"salestrack/internal/domain"
	"salestrack/internal/sequence"
	"salestrack/internal/store"
	"salestrack/internal/store/memory"
)

func newTestResolver(t *testing.T) (*Resolver, *memory.Store) {
	t.Helper()
	alloc := sequence.NewLocal()
	t.Cleanup(alloc.Close)
	return New(alloc), memory.New()
}

func TestResolveProductContinuesExistingCodes(t *testing.T) {
	r, repo := newTestResolver(t)
	ctx := context.Background()

	for i := 1; i <= 9; i++ {
		code := fmt.Sprintf("PRD-%04d", i)
		if _, err := repo.CreateProduct(ctx, domain.Product{Code: code, Name: "Ürün " + code}); err != nil {
			t.Fatalf("seed %s failed: %v", code, err)
		}
	}

	product, created, err := r.ResolveProduct(ctx, repo, "Yeni Kalem", decimal.NewFromInt(15))
	if err != nil {
		t.Fatalf("resolve product failed: %v", err)
	}
	if !created {
		t.Fatalf("expected product to be created")
	}
	if product.Code != "PRD-0010" {
		t.Fatalf("expected PRD-0010, got %s", product.Code)
	}
	if product.Price == nil || !product.Price.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected price 15, got %v", product.Price)
	}
}

func TestResolveProductUpdatesPriceOnlyWhenPositive(t *testing.T) {
	r, repo := newTestResolver(t)
	ctx := context.Background()

	first, _, err := r.ResolveProduct(ctx, repo, "Defter", decimal.NewFromInt(20))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	again, created, err := r.ResolveProduct(ctx, repo, "Defter", decimal.Zero)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if created || again.ID != first.ID {
		t.Fatalf("expected the existing product to be returned")
	}
	if again.Price == nil || !again.Price.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected zero price to be ignored, got %v", again.Price)
	}

	updated, _, err := r.ResolveProduct(ctx, repo, "Defter", decimal.RequireFromString("22.5"))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !updated.Price.Equal(decimal.RequireFromString("22.5")) {
		t.Fatalf("expected price 22.5, got %s", updated.Price)
	}
}

func TestResolveProductRetriesAfterCodeConflict(t *testing.T) {
	r, repo := newTestResolver(t)
	ctx := context.Background()

	// the floor reports nothing, so the first allocation collides with PRD-0001
	stale := &staleFloorRepo{Store: repo}
	if _, err := repo.CreateProduct(ctx, domain.Product{Code: "PRD-0001", Name: "Eski"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	product, created, err := r.ResolveProduct(ctx, stale, "Yeni", decimal.Zero)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !created || product.Code != "PRD-0002" {
		t.Fatalf("expected PRD-0002 after retry, got %s (created=%v)", product.Code, created)
	}
}

type staleFloorRepo struct {
	*memory.Store
}

func (s *staleFloorRepo) MaxProductSeq(context.Context, string) (int64, error) {
	return 0, nil
}

func TestResolveCustomerCreatesWithHints(t *testing.T) {
	r, repo := newTestResolver(t)
	ctx := context.Background()

	customer, created, err := r.ResolveCustomer(ctx, repo, " Ayşe Yılmaz ", CustomerHint{City: "İstanbul", StoreCode: "T101"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !created {
		t.Fatalf("expected customer to be created")
	}
	if customer.Name != "Ayşe Yılmaz" || customer.City != "İstanbul" || customer.StoreCode != "T101" {
		t.Fatalf("unexpected customer %+v", customer)
	}
}

func TestResolveCustomerNeverDowngradesToUnknown(t *testing.T) {
	r, repo := newTestResolver(t)
	ctx := context.Background()

	if _, _, err := r.ResolveCustomer(ctx, repo, "Ali", CustomerHint{City: "Ankara", StoreCode: "T201"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	customer, created, err := r.ResolveCustomer(ctx, repo, "Ali", CustomerHint{City: domain.UnknownCity, StoreCode: "T999"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if created {
		t.Fatalf("expected existing customer")
	}
	if customer.City != "Ankara" || customer.StoreCode != "T201" {
		t.Fatalf("expected record untouched when the row city is unknown, got %+v", customer)
	}

	customer, _, err = r.ResolveCustomer(ctx, repo, "Ali", CustomerHint{City: "İzmir", StoreCode: ""})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if customer.City != "Ankara" {
		t.Fatalf("expected no enrichment without a store, got %s", customer.City)
	}

	customer, _, err = r.ResolveCustomer(ctx, repo, "Ali", CustomerHint{City: "İzmir", StoreCode: "T301"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if customer.City != "İzmir" || customer.StoreCode != "T301" {
		t.Fatalf("expected enrichment with a fully known row, got %+v", customer)
	}
}

func TestMergeCustomerKeepsKnownFields(t *testing.T) {
	base := domain.Customer{Name: "Acme", City: "Bursa", Phone: "0555"}
	merged, changed := MergeCustomer(base, domain.Customer{City: domain.UnknownCity, Email: "info@acme.test"})
	if !changed {
		t.Fatalf("expected email to count as a change")
	}
	if merged.City != "Bursa" || merged.Phone != "0555" || merged.Email != "info@acme.test" {
		t.Fatalf("unexpected merge result %+v", merged)
	}

	if _, changed := MergeCustomer(merged, domain.Customer{Phone: "0555"}); changed {
		t.Fatalf("expected identical observation to be a no-op")
	}
}

var _ store.Repository = (*staleFloorRepo)(nil)
