package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salestrack/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

type Repository interface {
	// WithinTx runs fn against a repository whose writes are applied
	// together or not at all. Nested calls join the outer transaction.
	WithinTx(ctx context.Context, fn func(Repository) error) error

	GetStoreByCode(ctx context.Context, code string) (*domain.Store, error)
	UpsertStore(ctx context.Context, st domain.Store) error
	ListStores(ctx context.Context) ([]domain.Store, error)

	FindCustomerByName(ctx context.Context, name string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	FindProductByName(ctx context.Context, name string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	MaxProductSeq(ctx context.Context, prefix string) (int64, error)

	FindSaleByKey(ctx context.Context, key domain.SaleKey) (*domain.Sale, error)
	// ListSplitRemainders returns the sales split off parentID by partial
	// shipments, deleted ones included.
	ListSplitRemainders(ctx context.Context, parentID string) ([]domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	CountSales(ctx context.Context, includeDeleted bool) (int, error)
	MaxOrderSeq(ctx context.Context, prefix string) (int64, error)
	SumSalesTotal(ctx context.Context, from time.Time, to time.Time) (decimal.Decimal, error)

	UpsertMonthlyTarget(ctx context.Context, target domain.MonthlyTarget) (*domain.MonthlyTarget, error)
	GetMonthlyTarget(ctx context.Context, year int, month int) (*domain.MonthlyTarget, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// SeqFromCode extracts the numeric suffix of code after prefix. Codes with
// any other shape are not part of the namespace.
func SeqFromCode(code string, prefix string) (int64, bool) {
	if !strings.HasPrefix(code, prefix) {
		return 0, false
	}
	digits := code[len(prefix):]
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// MonthRange returns the half-open [from, to) interval covering a calendar
// month in UTC.
func MonthRange(year int, month int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}
