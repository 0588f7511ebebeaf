// Package order owns the sale status machine, order numbering and the
// partial shipment split.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salestrack/internal/domain"
	"salestrack/internal/metrics"
	"salestrack/internal/normalize"
	"salestrack/internal/resolver"
	"salestrack/internal/sequence"
	"salestrack/internal/store"
	"salestrack/internal/xid"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidQuantity   = errors.New("invalid quantity")
)

// Notifier receives lifecycle events after the change is committed.
type Notifier interface {
	SaleShipped(saleID string)
	NewOrder(saleID string)
	BatchOrder(saleIDs []string)
}

type Manager struct {
	repo     store.Repository
	alloc    sequence.Allocator
	resolver *resolver.Resolver
	notifier Notifier
	metrics  *metrics.Metrics
}

func NewManager(repo store.Repository, alloc sequence.Allocator, res *resolver.Resolver, notifier Notifier, m *metrics.Metrics) *Manager {
	return &Manager{
		repo:     repo,
		alloc:    alloc,
		resolver: res,
		notifier: notifier,
		metrics:  m,
	}
}

// Namespace is the order number prefix for the calendar month of date,
// e.g. "ORD-202601-".
func Namespace(date time.Time) string {
	u := date.UTC()
	return fmt.Sprintf("ORD-%04d%02d-", u.Year(), int(u.Month()))
}

// GenerateOrderNumber allocates the next order number for date's month.
// Numbers only ever increase and are never handed out twice.
func (m *Manager) GenerateOrderNumber(ctx context.Context, repo store.Repository, date time.Time) (string, error) {
	prefix := Namespace(date)
	seq, err := m.alloc.Next(ctx, prefix, func(ctx context.Context) (int64, error) {
		return repo.MaxOrderSeq(ctx, prefix)
	})
	if err != nil {
		return "", fmt.Errorf("allocate order number: %w", err)
	}
	m.metrics.Allocated("order")
	return sequence.Format(prefix, seq), nil
}

// Create stores a manually entered sale under a fresh order number.
func (m *Manager) Create(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	var created *domain.Sale
	err := m.repo.WithinTx(ctx, func(repo store.Repository) error {
		sale, err := m.saleFromDraft(ctx, repo, draft)
		if err != nil {
			return err
		}
		sale.OrderNumber, err = m.GenerateOrderNumber(ctx, repo, sale.Date)
		if err != nil {
			return err
		}
		created, err = repo.CreateSale(ctx, sale)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.notify(func(n Notifier) { n.NewOrder(created.ID) })
	return created, nil
}

// CreateBatch stores several lines of one order under a single order
// number. Either every line is stored or none is.
func (m *Manager) CreateBatch(ctx context.Context, drafts []domain.SaleDraft) ([]domain.Sale, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("empty batch: %w", store.ErrInvalidTransaction)
	}

	created := make([]domain.Sale, 0, len(drafts))
	err := m.repo.WithinTx(ctx, func(repo store.Repository) error {
		sales := make([]domain.Sale, 0, len(drafts))
		for i, draft := range drafts {
			sale, err := m.saleFromDraft(ctx, repo, draft)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			sales = append(sales, sale)
		}

		orderNumber, err := m.GenerateOrderNumber(ctx, repo, sales[0].Date)
		if err != nil {
			return err
		}
		for _, sale := range sales {
			sale.OrderNumber = orderNumber
			saved, err := repo.CreateSale(ctx, sale)
			if err != nil {
				return err
			}
			created = append(created, *saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(created))
	for _, sale := range created {
		ids = append(ids, sale.ID)
	}
	m.notify(func(n Notifier) { n.BatchOrder(ids) })
	return created, nil
}

func (m *Manager) saleFromDraft(ctx context.Context, repo store.Repository, draft domain.SaleDraft) (domain.Sale, error) {
	date, ok := normalize.ParseFlexibleDate(draft.Date)
	if !ok {
		return domain.Sale{}, fmt.Errorf("unparseable date %q: %w", draft.Date, store.ErrInvalidTransaction)
	}
	item := normalize.CleanText(draft.ItemName)
	if item == "" {
		return domain.Sale{}, fmt.Errorf("item is required: %w", store.ErrInvalidTransaction)
	}
	if draft.Quantity < 1 {
		return domain.Sale{}, fmt.Errorf("quantity %d: %w", draft.Quantity, ErrInvalidQuantity)
	}
	if draft.UnitPrice.IsNegative() || draft.Total.IsNegative() {
		return domain.Sale{}, fmt.Errorf("negative amount: %w", store.ErrInvalidTransaction)
	}

	sale := domain.Sale{
		Date:          domain.DateOnly(date),
		StoreCode:     strings.TrimSpace(draft.StoreCode),
		StoreName:     normalize.CleanText(draft.StoreName),
		City:          normalize.NormalizeCityName(draft.City),
		Region:        normalize.CleanText(draft.Region),
		Salesperson:   normalize.CleanText(draft.Salesperson),
		CustomerName:  normalize.CleanText(draft.CustomerName),
		ItemName:      item,
		UnitPrice:     draft.UnitPrice,
		Quantity:      draft.Quantity,
		Total:         draft.Total,
		Profit:        draft.Profit,
		Status:        domain.SaleStatusPending,
		InvoiceNumber: strings.TrimSpace(draft.InvoiceNumber),
		PaymentStatus: domain.PaymentUnpaid,
	}
	if draft.Approved {
		sale.Status = domain.SaleStatusApproved
	}
	if draft.PaymentStatus != "" {
		if !draft.PaymentStatus.Valid() {
			return domain.Sale{}, fmt.Errorf("payment status %q: %w", draft.PaymentStatus, store.ErrInvalidTransaction)
		}
		sale.PaymentStatus = draft.PaymentStatus
	}
	if sale.Total.IsZero() {
		sale.Total = sale.UnitPrice.Mul(decimal.NewFromInt(int64(sale.Quantity)))
	}

	if sale.StoreCode != "" {
		st, err := repo.GetStoreByCode(ctx, sale.StoreCode)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, err
		}
		if st != nil {
			sale.EnrichFromStore(*st)
		}
	}

	if sale.CustomerName != "" {
		customer, _, err := m.resolver.ResolveCustomer(ctx, repo, sale.CustomerName, resolver.CustomerHint{City: sale.City, StoreCode: sale.StoreCode})
		if err != nil {
			return domain.Sale{}, err
		}
		sale.CustomerID = customer.ID
	}
	product, _, err := m.resolver.ResolveProduct(ctx, repo, sale.ItemName, sale.UnitPrice)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.ProductID = product.ID
	return sale, nil
}

func (m *Manager) Approve(ctx context.Context, id string) (*domain.Sale, error) {
	return m.transition(ctx, id, domain.SaleStatusPending, domain.SaleStatusApproved)
}

func (m *Manager) Reject(ctx context.Context, id string) (*domain.Sale, error) {
	return m.transition(ctx, id, domain.SaleStatusPending, domain.SaleStatusRejected)
}

func (m *Manager) transition(ctx context.Context, id string, from domain.SaleStatus, to domain.SaleStatus) (*domain.Sale, error) {
	return m.mutate(ctx, id, func(sale *domain.Sale) error {
		if sale.Status != from {
			return fmt.Errorf("%s -> %s: %w", sale.Status, to, ErrInvalidTransition)
		}
		sale.Status = to
		return nil
	})
}

func (m *Manager) SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) (*domain.Sale, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("payment status %q: %w", status, store.ErrInvalidTransaction)
	}
	return m.mutate(ctx, id, func(sale *domain.Sale) error {
		sale.PaymentStatus = status
		return nil
	})
}

func (m *Manager) SetInvoiceNumber(ctx context.Context, id string, invoiceNumber string) (*domain.Sale, error) {
	invoiceNumber = strings.TrimSpace(invoiceNumber)
	return m.mutate(ctx, id, func(sale *domain.Sale) error {
		sale.InvoiceNumber = invoiceNumber
		return nil
	})
}

// Delete flags the sale as deleted; the row stays for reporting history.
func (m *Manager) Delete(ctx context.Context, id string, at time.Time) (*domain.Sale, error) {
	deletedAt := at.UTC()
	return m.mutate(ctx, id, func(sale *domain.Sale) error {
		sale.DeletedAt = &deletedAt
		return nil
	})
}

// mutate loads a live sale, applies fn and saves it in one transaction.
func (m *Manager) mutate(ctx context.Context, id string, fn func(*domain.Sale) error) (*domain.Sale, error) {
	var updated *domain.Sale
	err := m.repo.WithinTx(ctx, func(repo store.Repository) error {
		sale, err := repo.GetSale(ctx, id)
		if err != nil {
			return err
		}
		if sale.Deleted() {
			return fmt.Errorf("sale %s is deleted: %w", id, ErrInvalidTransition)
		}
		if err := fn(sale); err != nil {
			return err
		}
		updated, err = repo.UpdateSale(ctx, *sale)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Ship marks an approved sale as shipped. When fewer units than ordered
// leave, the sale is narrowed to the shipped units and a new pending sale
// is created for the rest.
func (m *Manager) Ship(ctx context.Context, id string, req domain.ShipRequest) (*domain.ShipResult, error) {
	if req.Quantity < 1 {
		return nil, fmt.Errorf("ship quantity %d: %w", req.Quantity, ErrInvalidQuantity)
	}

	var result domain.ShipResult
	err := m.repo.WithinTx(ctx, func(repo store.Repository) error {
		sale, err := repo.GetSale(ctx, id)
		if err != nil {
			return err
		}
		if sale.Deleted() || sale.Status != domain.SaleStatusApproved {
			return fmt.Errorf("ship from %s: %w", sale.Status, ErrInvalidTransition)
		}

		if req.Quantity >= sale.Quantity {
			sale.IsShipped = true
			sale.Status = domain.SaleStatusShipped
			sale.WaybillNumber = strings.TrimSpace(req.WaybillNumber)
			shipped, err := repo.UpdateSale(ctx, *sale)
			if err != nil {
				return err
			}
			result = domain.ShipResult{Shipped: *shipped}
			return nil
		}

		shipped, remainder := Split(*sale, req.Quantity, xid.New("sale"))
		shipped.WaybillNumber = strings.TrimSpace(req.WaybillNumber)
		savedShipped, err := repo.UpdateSale(ctx, shipped)
		if err != nil {
			return err
		}
		savedRemainder, err := repo.CreateSale(ctx, remainder)
		if err != nil {
			return err
		}
		result = domain.ShipResult{Shipped: *savedShipped, Remainder: savedRemainder}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.notify(func(n Notifier) { n.SaleShipped(result.Shipped.ID) })
	return &result, nil
}

// Split divides sale into a shipped part of shippedQty units and a pending
// remainder with the given id. Amounts are proportional and rounded to
// cents on the shipped side; the remainder absorbs the rounding so both
// parts always add up to the original figures.
func Split(sale domain.Sale, shippedQty int, remainderID string) (domain.Sale, domain.Sale) {
	qty := decimal.NewFromInt(int64(sale.Quantity))
	shippedUnits := decimal.NewFromInt(int64(shippedQty))
	remainingQty := sale.Quantity - shippedQty

	shippedTotal := sale.Total.Mul(shippedUnits).Div(qty).Round(2)
	unitProfit := sale.Profit.Div(qty)
	shippedProfit := unitProfit.Mul(shippedUnits).Round(2)

	remainder := sale
	remainder.ID = remainderID
	remainder.Quantity = remainingQty
	remainder.Total = sale.Total.Sub(shippedTotal)
	remainder.Profit = sale.Profit.Sub(shippedProfit)
	remainder.Status = domain.SaleStatusPending
	remainder.IsShipped = false
	remainder.WaybillNumber = ""
	remainder.Notes = fmt.Sprintf("Remaining %d of %d units from partial shipment of %s", remainingQty, sale.Quantity, sale.ID)
	remainder.SplitFromID = sale.ID
	remainder.DeletedAt = nil

	shipped := sale
	shipped.Quantity = shippedQty
	shipped.Total = shippedTotal
	shipped.Profit = shippedProfit
	shipped.Status = domain.SaleStatusShipped
	shipped.IsShipped = true
	note := fmt.Sprintf("Partial shipment: %d of %d units shipped, %d pending as %s", shippedQty, sale.Quantity, remainingQty, remainderID)
	if strings.TrimSpace(shipped.Notes) == "" {
		shipped.Notes = note
	} else {
		shipped.Notes = shipped.Notes + "; " + note
	}

	return shipped, remainder
}

func (m *Manager) notify(fn func(Notifier)) {
	if m.notifier == nil {
		return
	}
	fn(m.notifier)
}
