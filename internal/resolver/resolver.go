// Package resolver finds or creates customer and product master records by
// name. Updates only ever add information.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"salestrack/internal/domain"
	"salestrack/internal/sequence"
	"salestrack/internal/store"
)

// ProductPrefix namespaces generated product codes.
const ProductPrefix = "PRD-"

const maxCreateAttempts = 3

type Resolver struct {
	alloc sequence.Allocator
}

func New(alloc sequence.Allocator) *Resolver {
	return &Resolver{alloc: alloc}
}

// CustomerHint carries what the current row knows about the customer.
// Empty fields and domain.UnknownCity mean "not observed".
type CustomerHint struct {
	City      string
	StoreCode string
}

// ResolveCustomer returns the first customer with exactly this name,
// creating it when absent. An existing record is enriched only when the
// row knows both its city and store.
func (r *Resolver) ResolveCustomer(ctx context.Context, repo store.Repository, name string, hint CustomerHint) (*domain.Customer, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("customer name is empty: %w", store.ErrInvalidTransaction)
	}

	existing, err := repo.FindCustomerByName(ctx, name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		if !domain.KnownCity(hint.City) || hint.StoreCode == "" {
			return existing, false, nil
		}
		merged, changed := MergeCustomer(*existing, domain.Customer{City: hint.City, StoreCode: hint.StoreCode})
		if !changed {
			return existing, false, nil
		}
		updated, err := repo.UpdateCustomer(ctx, merged)
		if err != nil {
			return nil, false, fmt.Errorf("enrich customer %s: %w", name, err)
		}
		return updated, false, nil
	}

	city := hint.City
	if city == "" {
		city = domain.UnknownCity
	}
	created, err := repo.CreateCustomer(ctx, domain.Customer{Name: name, City: city, StoreCode: hint.StoreCode})
	if err != nil {
		return nil, false, fmt.Errorf("create customer %s: %w", name, err)
	}
	return created, true, nil
}

// MergeCustomer copies every known field of observed onto base and reports
// whether anything changed. Unknown or empty observations never replace a
// value.
func MergeCustomer(base domain.Customer, observed domain.Customer) (domain.Customer, bool) {
	changed := false
	set := func(dst *string, val string) {
		if val == "" || val == *dst {
			return
		}
		*dst = val
		changed = true
	}

	if domain.KnownCity(observed.City) {
		set(&base.City, observed.City)
	}
	set(&base.StoreCode, observed.StoreCode)
	set(&base.ContactName, observed.ContactName)
	set(&base.ContactTitle, observed.ContactTitle)
	set(&base.Phone, observed.Phone)
	set(&base.Email, observed.Email)
	if observed.RegisteredAt != nil && (base.RegisteredAt == nil || !base.RegisteredAt.Equal(*observed.RegisteredAt)) {
		at := *observed.RegisteredAt
		base.RegisteredAt = &at
		changed = true
	}
	return base, changed
}

// ResolveProduct returns the product with this name, creating it with the
// next PRD code when absent. A positive observed price replaces the stored
// one.
func (r *Resolver) ResolveProduct(ctx context.Context, repo store.Repository, name string, observedPrice decimal.Decimal) (*domain.Product, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("product name is empty: %w", store.ErrInvalidTransaction)
	}

	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		existing, err := repo.FindProductByName(ctx, name)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
		if existing != nil {
			updated, err := r.refreshPrice(ctx, repo, *existing, observedPrice)
			return updated, false, err
		}

		seq, err := r.alloc.Next(ctx, ProductPrefix, func(ctx context.Context) (int64, error) {
			return repo.MaxProductSeq(ctx, ProductPrefix)
		})
		if err != nil {
			return nil, false, err
		}

		product := domain.Product{Code: sequence.Format(ProductPrefix, seq), Name: name}
		if observedPrice.IsPositive() {
			price := observedPrice
			product.Price = &price
		}
		created, err := repo.CreateProduct(ctx, product)
		if err == nil {
			return created, true, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, false, fmt.Errorf("create product %s: %w", name, err)
		}
		lastErr = err
	}
	return nil, false, fmt.Errorf("create product %s after %d attempts: %w", name, maxCreateAttempts, lastErr)
}

func (r *Resolver) refreshPrice(ctx context.Context, repo store.Repository, product domain.Product, observed decimal.Decimal) (*domain.Product, error) {
	if !observed.IsPositive() || (product.Price != nil && product.Price.Equal(observed)) {
		return &product, nil
	}
	price := observed
	product.Price = &price
	updated, err := repo.UpdateProduct(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("update price of %s: %w", product.Code, err)
	}
	return updated, nil
}
