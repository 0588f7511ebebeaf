package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"salestrack/internal/domain"
	"salestrack/internal/resolver"
	"salestrack/internal/sequence"
	"salestrack/internal/store"
	"salestrack/internal/store/memory"
)

type recordingNotifier struct {
	mu      sync.Mutex
	shipped []string
	orders  []string
	batches [][]string
}

func (r *recordingNotifier) SaleShipped(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shipped = append(r.shipped, id)
}

func (r *recordingNotifier) NewOrder(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, id)
}

func (r *recordingNotifier) BatchOrder(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, ids)
}

func newTestManager(t *testing.T) (*Manager, *memory.Store, *recordingNotifier) {
	t.Helper()
	repo := memory.NewSeeded()
	alloc := sequence.NewLocal()
	t.Cleanup(alloc.Close)
	rec := &recordingNotifier{}
	return NewManager(repo, alloc, resolver.New(alloc), rec, nil), repo, rec
}

func approvedSale(t *testing.T, repo *memory.Store, qty int, total string, profit string) *domain.Sale {
	t.Helper()
	sale, err := repo.CreateSale(context.Background(), domain.Sale{
		Date:          time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC),
		StoreName:     "Kadıköy",
		City:          "İstanbul",
		CustomerName:  "Ayşe",
		ItemName:      "Kalem",
		UnitPrice:     decimal.RequireFromString(total).Div(decimal.NewFromInt(int64(qty))),
		Quantity:      qty,
		Total:         decimal.RequireFromString(total),
		Profit:        decimal.RequireFromString(profit),
		Status:        domain.SaleStatusApproved,
		PaymentStatus: domain.PaymentUnpaid,
		OrderNumber:   "ORD-202601-0001",
	})
	if err != nil {
		t.Fatalf("seed sale failed: %v", err)
	}
	return sale
}

func TestGenerateOrderNumberContinuesMonth(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := repo.CreateSale(ctx, domain.Sale{
			Date:          time.Date(2026, 1, i, 0, 0, 0, 0, time.UTC),
			ItemName:      fmt.Sprintf("item %d", i),
			Quantity:      1,
			Status:        domain.SaleStatusPending,
			PaymentStatus: domain.PaymentUnpaid,
			OrderNumber:   fmt.Sprintf("ORD-202601-%04d", i),
		})
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	next, err := m.GenerateOrderNumber(ctx, repo, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if next != "ORD-202601-0004" {
		t.Fatalf("expected ORD-202601-0004, got %s", next)
	}

	other, _ := m.GenerateOrderNumber(ctx, repo, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if other != "ORD-202602-0001" {
		t.Fatalf("expected a fresh sequence for February, got %s", other)
	}
}

func TestConcurrentCreatesGetDistinctOrderNumbers(t *testing.T) {
	m, _, rec := newTestManager(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	numbers := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sale, err := m.Create(ctx, domain.SaleDraft{
				Date:         "2026-01-15",
				StoreName:    "Kadıköy",
				CustomerName: fmt.Sprintf("Müşteri %d", i),
				ItemName:     "Defter",
				UnitPrice:    decimal.NewFromInt(5),
				Quantity:     2,
			})
			if err != nil {
				t.Errorf("create failed: %v", err)
				return
			}
			numbers <- sale.OrderNumber
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool)
	for n := range numbers {
		if seen[n] {
			t.Fatalf("order number %s issued twice", n)
		}
		seen[n] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d order numbers, got %d", workers, len(seen))
	}
	if len(rec.orders) != workers {
		t.Fatalf("expected %d new order events, got %d", workers, len(rec.orders))
	}
}

func TestCreateAppliesDefaultsAndResolvesMasters(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	sale, err := m.Create(ctx, domain.SaleDraft{
		Date:         "15.01.2026",
		StoreCode:    "T201",
		City:         "26.03.2025",
		CustomerName: "  Ali   Veli ",
		ItemName:     "Silgi",
		UnitPrice:    decimal.RequireFromString("2.5"),
		Quantity:     4,
		Approved:     true,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if sale.Status != domain.SaleStatusApproved || sale.PaymentStatus != domain.PaymentUnpaid {
		t.Fatalf("unexpected status %s / %s", sale.Status, sale.PaymentStatus)
	}
	if !sale.Total.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected total 10, got %s", sale.Total)
	}
	if sale.StoreName != "Kızılay" || sale.City != "Ankara" {
		t.Fatalf("expected store enrichment, got %s / %s", sale.StoreName, sale.City)
	}
	if sale.CustomerID == "" || sale.ProductID == "" {
		t.Fatalf("expected resolved customer and product ids")
	}
	customer, err := repo.FindCustomerByName(ctx, "Ali Veli")
	if err != nil || customer.ID != sale.CustomerID {
		t.Fatalf("expected customer Ali Veli to exist, got %v", err)
	}
}

func TestCreateRejectsBadDraft(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, domain.SaleDraft{Date: "yesterday", ItemName: "x", Quantity: 1})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected invalid transaction for bad date, got %v", err)
	}
	_, err = m.Create(ctx, domain.SaleDraft{Date: "2026-01-01", ItemName: "x", Quantity: 0})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
}

func TestCreateBatchIsAllOrNothing(t *testing.T) {
	m, repo, rec := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateBatch(ctx, []domain.SaleDraft{
		{Date: "2026-01-10", ItemName: "Kalem", Quantity: 1},
		{Date: "2026-01-10", ItemName: "", Quantity: 1},
	})
	if err == nil {
		t.Fatalf("expected batch with an invalid line to fail")
	}
	if count, _ := repo.CountSales(ctx, true); count != 0 {
		t.Fatalf("expected no sales stored after failed batch, got %d", count)
	}

	sales, err := m.CreateBatch(ctx, []domain.SaleDraft{
		{Date: "2026-01-10", ItemName: "Kalem", Quantity: 1},
		{Date: "2026-01-10", ItemName: "Silgi", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(sales) != 2 || sales[0].OrderNumber != sales[1].OrderNumber || sales[0].OrderNumber == "" {
		t.Fatalf("expected two lines sharing one order number, got %+v", sales)
	}
	if len(rec.batches) != 1 || len(rec.batches[0]) != 2 {
		t.Fatalf("expected one batch event with two ids, got %v", rec.batches)
	}
}

func TestShipPartialSplitsAndConserves(t *testing.T) {
	m, repo, rec := newTestManager(t)
	ctx := context.Background()
	sale := approvedSale(t, repo, 10, "1000", "200")

	result, err := m.Ship(ctx, sale.ID, domain.ShipRequest{Quantity: 4, WaybillNumber: "IRS-77"})
	if err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	shipped, remainder := result.Shipped, result.Remainder
	if remainder == nil {
		t.Fatalf("expected a remainder record")
	}

	if shipped.ID != sale.ID {
		t.Fatalf("expected original id to keep the shipped part")
	}
	if shipped.Quantity != 4 || !shipped.Total.Equal(decimal.NewFromInt(400)) || !shipped.Profit.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("unexpected shipped part %d / %s / %s", shipped.Quantity, shipped.Total, shipped.Profit)
	}
	if shipped.Status != domain.SaleStatusShipped || !shipped.IsShipped || shipped.WaybillNumber != "IRS-77" {
		t.Fatalf("expected shipped part to be marked shipped, got %+v", shipped)
	}
	if shipped.Notes == "" {
		t.Fatalf("expected annotation note on shipped part")
	}

	if remainder.Quantity != 6 || !remainder.Total.Equal(decimal.NewFromInt(600)) || !remainder.Profit.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("unexpected remainder %d / %s / %s", remainder.Quantity, remainder.Total, remainder.Profit)
	}
	if remainder.Status != domain.SaleStatusPending || remainder.IsShipped || remainder.WaybillNumber != "" {
		t.Fatalf("expected pending unshipped remainder, got %+v", remainder)
	}
	if remainder.SplitFromID != sale.ID || remainder.OrderNumber != sale.OrderNumber || remainder.CustomerName != sale.CustomerName {
		t.Fatalf("expected remainder to copy descriptive fields, got %+v", remainder)
	}
	if len(rec.shipped) != 1 || rec.shipped[0] != sale.ID {
		t.Fatalf("expected one shipped event, got %v", rec.shipped)
	}
}

func TestSplitConservesWithUnevenUnits(t *testing.T) {
	sale := domain.Sale{ID: "sale-1", Quantity: 3, Total: decimal.NewFromInt(100), Profit: decimal.NewFromInt(10)}

	shipped, remainder := Split(sale, 1, "sale-2")
	if shipped.Quantity+remainder.Quantity != 3 {
		t.Fatalf("quantities do not add up")
	}
	if !shipped.Total.Add(remainder.Total).Equal(sale.Total) {
		t.Fatalf("totals do not add up: %s + %s", shipped.Total, remainder.Total)
	}
	if !shipped.Profit.Add(remainder.Profit).Equal(sale.Profit) {
		t.Fatalf("profits do not add up: %s + %s", shipped.Profit, remainder.Profit)
	}
	if !shipped.Total.Equal(decimal.RequireFromString("33.33")) {
		t.Fatalf("expected shipped total rounded to cents, got %s", shipped.Total)
	}
}

func TestShipFullQuantity(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()
	sale := approvedSale(t, repo, 5, "50", "5")

	result, err := m.Ship(ctx, sale.ID, domain.ShipRequest{Quantity: 7, WaybillNumber: "IRS-1"})
	if err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	if result.Remainder != nil {
		t.Fatalf("expected no remainder for full shipment")
	}
	if result.Shipped.Quantity != 5 || result.Shipped.Status != domain.SaleStatusShipped {
		t.Fatalf("unexpected shipped sale %+v", result.Shipped)
	}
	if count, _ := repo.CountSales(ctx, false); count != 1 {
		t.Fatalf("expected one sale, got %d", count)
	}
}

func TestStatusMachine(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	pending, err := repo.CreateSale(ctx, domain.Sale{
		Date:          time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
		ItemName:      "Kalem",
		Quantity:      2,
		Status:        domain.SaleStatusPending,
		PaymentStatus: domain.PaymentUnpaid,
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := m.Ship(ctx, pending.ID, domain.ShipRequest{Quantity: 1}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected shipping a pending sale to fail, got %v", err)
	}
	if _, err := m.Approve(ctx, pending.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := m.Reject(ctx, pending.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected reject after approve to fail, got %v", err)
	}
	if _, err := m.Ship(ctx, pending.ID, domain.ShipRequest{Quantity: 0}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}

	paid, err := m.SetPaymentStatus(ctx, pending.ID, domain.PaymentPaid)
	if err != nil || paid.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("set payment failed: %v", err)
	}
	if _, err := m.SetPaymentStatus(ctx, pending.ID, "MAYBE"); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected invalid payment status error, got %v", err)
	}
	invoiced, err := m.SetInvoiceNumber(ctx, pending.ID, " FTR-9 ")
	if err != nil || invoiced.InvoiceNumber != "FTR-9" {
		t.Fatalf("set invoice failed: %v", err)
	}

	if _, err := m.Delete(ctx, pending.ID, time.Now()); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := m.Ship(ctx, pending.ID, domain.ShipRequest{Quantity: 1}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected deleted sale to reject shipping, got %v", err)
	}
	if _, err := m.Delete(ctx, pending.ID, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected second delete to fail, got %v", err)
	}
	if _, err := m.Approve(ctx, "sale-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
