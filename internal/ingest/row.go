package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salestrack/internal/domain"
	"salestrack/internal/normalize"
	"salestrack/internal/schema"
)

// Keep decides whether a row dated t is in scope for the import.
type Keep func(t time.Time) bool

// FromYear keeps rows dated in year or later.
func FromYear(year int) Keep {
	return func(t time.Time) bool { return t.Year() >= year }
}

type rowKind int

const (
	rowSale rowKind = iota
	rowBlank
	rowOutOfScope
)

// parseSaleRow turns one data row into a candidate sale. Blank and
// out-of-scope rows are reported by kind; malformed rows by error.
func parseSaleRow(sch schema.SheetSchema, cells []string, keep Keep) (domain.Sale, rowKind, error) {
	if isBlank(cells) {
		return domain.Sale{}, rowBlank, nil
	}

	rawDate := sch.Cell(cells, schema.ColDate)
	item := normalize.CleanText(sch.Cell(cells, schema.ColItem))
	if rawDate == "" && item == "" {
		// totals and note lines under the data carry neither
		return domain.Sale{}, rowBlank, nil
	}

	date, ok := normalize.ParseFlexibleDate(rawDate)
	if !ok {
		return domain.Sale{}, rowSale, fmt.Errorf("unparseable date %q", rawDate)
	}
	if keep != nil && !keep(date) {
		return domain.Sale{}, rowOutOfScope, nil
	}
	if item == "" {
		return domain.Sale{}, rowSale, fmt.Errorf("missing item")
	}

	quantity := 1
	if raw := sch.Cell(cells, schema.ColQuantity); raw != "" {
		q, ok := normalize.ParseQuantity(raw)
		if !ok {
			return domain.Sale{}, rowSale, fmt.Errorf("unparseable quantity %q", raw)
		}
		if q < 1 {
			return domain.Sale{}, rowSale, fmt.Errorf("quantity %d is not positive", q)
		}
		quantity = q
	}

	price := decimalCell(sch, cells, schema.ColPrice)
	total, hasTotal := normalize.ParseDecimal(sch.Cell(cells, schema.ColTotal))
	if !hasTotal {
		total = price.Mul(decimal.NewFromInt(int64(quantity)))
	}

	sale := domain.Sale{
		Date:          domain.DateOnly(date),
		StoreCode:     strings.TrimSpace(sch.Cell(cells, schema.ColStoreCode)),
		StoreName:     normalize.CleanText(sch.Cell(cells, schema.ColStore)),
		City:          normalize.NormalizeCityName(sch.Cell(cells, schema.ColCity)),
		Region:        normalize.CleanText(sch.Cell(cells, schema.ColRegion)),
		Salesperson:   normalize.CleanText(sch.Cell(cells, schema.ColSalesperson)),
		CustomerName:  normalize.CleanText(sch.Cell(cells, schema.ColCustomer)),
		ItemName:      item,
		UnitPrice:     price,
		Quantity:      quantity,
		Total:         total,
		Profit:        decimalCell(sch, cells, schema.ColProfit),
		Status:        domain.SaleStatusApproved,
		WaybillNumber: normalize.CleanText(sch.Cell(cells, schema.ColWaybill)),
		InvoiceNumber: normalize.CleanText(sch.Cell(cells, schema.ColInvoice)),
		PaymentStatus: domain.PaymentUnpaid,
	}
	if sale.WaybillNumber != "" {
		sale.IsShipped = true
		sale.Status = domain.SaleStatusShipped
	}
	return sale, rowSale, nil
}

func decimalCell(sch schema.SheetSchema, cells []string, col schema.Column) decimal.Decimal {
	value, ok := normalize.ParseDecimal(sch.Cell(cells, col))
	if !ok {
		return decimal.Zero
	}
	return value
}

func isBlank(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// applyReimport copies the fields a later import is allowed to change onto
// the stored sale and returns notes on what it refused to change.
// Figures follow the workbook unless partial shipments have split the sale
// into remainders. A waybill only ships a sale that is still approved.
// Descriptive fields are only filled in, never blanked.
func applyReimport(existing domain.Sale, observed domain.Sale, remainders []domain.Sale) (domain.Sale, []string) {
	var notes []string
	if len(remainders) == 0 {
		existing.UnitPrice = observed.UnitPrice
		existing.Quantity = observed.Quantity
		existing.Total = observed.Total
		existing.Profit = observed.Profit
	} else if onRecord := splitQuantity(existing, remainders); observed.Quantity != onRecord {
		notes = append(notes, fmt.Sprintf(
			"sale %s is split across partial shipments; workbook quantity %d differs from %d on record, figures left unchanged",
			existing.ID, observed.Quantity, onRecord))
	}

	if observed.IsShipped && existing.Status != domain.SaleStatusShipped {
		if existing.Status == domain.SaleStatusApproved && !existing.Deleted() {
			existing.IsShipped = true
			existing.Status = domain.SaleStatusShipped
		} else {
			notes = append(notes, fmt.Sprintf("waybill %q ignored: sale %s is %s",
				observed.WaybillNumber, existing.ID, reimportState(existing)))
		}
	}

	if domain.KnownCity(observed.City) {
		existing.City = observed.City
	}
	fill := func(dst *string, val string) {
		if val != "" {
			*dst = val
		}
	}
	fill(&existing.StoreCode, observed.StoreCode)
	fill(&existing.Region, observed.Region)
	fill(&existing.Salesperson, observed.Salesperson)
	fill(&existing.CustomerID, observed.CustomerID)
	fill(&existing.ProductID, observed.ProductID)
	fill(&existing.InvoiceNumber, observed.InvoiceNumber)
	if existing.Status == domain.SaleStatusShipped {
		fill(&existing.WaybillNumber, observed.WaybillNumber)
	}
	return existing, notes
}

// splitQuantity is the live quantity of a sale plus its split remainders.
func splitQuantity(sale domain.Sale, remainders []domain.Sale) int {
	total := sale.Quantity
	for _, r := range remainders {
		if !r.Deleted() {
			total += r.Quantity
		}
	}
	return total
}

func reimportState(sale domain.Sale) string {
	if sale.Deleted() {
		return "deleted"
	}
	return string(sale.Status)
}
