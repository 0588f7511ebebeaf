package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salestrack/internal/domain"
	"salestrack/internal/ingest"
	"salestrack/internal/metrics"
	"salestrack/internal/order"
	"salestrack/internal/store"
	"salestrack/internal/xid"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	importer *ingest.Importer
	orders   *order.Manager
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(repo store.Repository, importer *ingest.Importer, orders *order.Manager, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		importer: importer,
		orders:   orders,
		metrics:  m,
		now:      time.Now,
	}
}

// ImportLegacyData reconciles a legacy sales workbook and refreshes the
// realized revenue of every month it touched.
func (s *Service) ImportLegacyData(ctx context.Context, data []byte) (summary domain.ImportSummary, err error) {
	defer s.observe(ctx, "import_legacy", time.Now(), &err)
	if err := requireAdmin(ctx); err != nil {
		return domain.ImportSummary{}, err
	}

	summary, err = s.importer.ImportLegacyData(ctx, data)
	if err != nil {
		return domain.ImportSummary{}, err
	}

	for _, month := range summary.MonthsTouched {
		period, perr := time.Parse("2006-01", month)
		if perr != nil {
			continue
		}
		if _, rerr := s.refreshRealized(ctx, period.Year(), int(period.Month())); rerr != nil && !errors.Is(rerr, store.ErrNotFound) {
			log.Printf("[service] WARN: refresh realized revenue %s: %v", month, rerr)
		}
	}

	s.logAudit(ctx, "legacy_import", "workbook", strings.Join(summary.SheetsProcessed, ","),
		fmt.Sprintf("imported=%d,created=%d,skipped=%d,errors=%d", summary.ImportedCount, summary.CreatedCount, summary.SkippedRowCount, len(summary.Errors)+summary.TruncatedErrorCount))
	return summary, nil
}

func (s *Service) ImportCustomerRoster(ctx context.Context, data []byte) (summary domain.RosterSummary, err error) {
	defer s.observe(ctx, "import_customers", time.Now(), &err)
	if err := requireAdmin(ctx); err != nil {
		return domain.RosterSummary{}, err
	}

	summary, err = s.importer.ImportCustomerRoster(ctx, data)
	if err != nil {
		return domain.RosterSummary{}, err
	}
	s.logAudit(ctx, "customer_import", "workbook", "",
		fmt.Sprintf("processed=%d,created=%d,updated=%d", summary.ProcessedCount, summary.CreatedCount, summary.UpdatedCount))
	return summary, nil
}

func (s *Service) CreateSale(ctx context.Context, draft domain.SaleDraft) (sale domain.Sale, err error) {
	defer s.observe(ctx, "sale_create", time.Now(), &err)

	created, err := s.orders.Create(ctx, draft)
	if err != nil {
		return domain.Sale{}, err
	}
	s.logAudit(ctx, "sale_create", "sale", created.ID, fmt.Sprintf("order=%s,qty=%d,total=%s", created.OrderNumber, created.Quantity, created.Total.StringFixed(2)))
	return *created, nil
}

func (s *Service) CreateSaleBatch(ctx context.Context, drafts []domain.SaleDraft) (sales []domain.Sale, err error) {
	defer s.observe(ctx, "sale_create_batch", time.Now(), &err)

	created, err := s.orders.CreateBatch(ctx, drafts)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "sale_create_batch", "order", created[0].OrderNumber, fmt.Sprintf("lines=%d", len(created)))
	return created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if filter.Month < 0 || filter.Month > 12 || (filter.Month > 0 && filter.Year == 0) {
		return nil, store.ErrInvalidTransaction
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, store.ErrInvalidTransaction
	}
	if filter.Limit < 1 {
		filter.Limit = 500
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) ApproveSale(ctx context.Context, id string) (sale domain.Sale, err error) {
	defer s.observe(ctx, "sale_approve", time.Now(), &err)
	if err := requireAdmin(ctx); err != nil {
		return domain.Sale{}, err
	}
	return s.lifecycle(ctx, "sale_approve", id, s.orders.Approve)
}

func (s *Service) RejectSale(ctx context.Context, id string) (sale domain.Sale, err error) {
	defer s.observe(ctx, "sale_reject", time.Now(), &err)
	if err := requireAdmin(ctx); err != nil {
		return domain.Sale{}, err
	}
	return s.lifecycle(ctx, "sale_reject", id, s.orders.Reject)
}

func (s *Service) ShipSale(ctx context.Context, id string, req domain.ShipRequest) (result domain.ShipResult, err error) {
	defer s.observe(ctx, "sale_ship", time.Now(), &err)

	shipped, err := s.orders.Ship(ctx, id, req)
	if err != nil {
		return domain.ShipResult{}, err
	}
	detail := fmt.Sprintf("qty=%d,waybill=%s", shipped.Shipped.Quantity, shipped.Shipped.WaybillNumber)
	if shipped.Remainder != nil {
		detail += fmt.Sprintf(",remainder=%s,remaining_qty=%d", shipped.Remainder.ID, shipped.Remainder.Quantity)
	}
	s.logAudit(ctx, "sale_ship", "sale", shipped.Shipped.ID, detail)
	return *shipped, nil
}

func (s *Service) SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) (sale domain.Sale, err error) {
	defer s.observe(ctx, "sale_payment", time.Now(), &err)
	return s.lifecycle(ctx, "sale_payment", id, func(ctx context.Context, id string) (*domain.Sale, error) {
		return s.orders.SetPaymentStatus(ctx, id, domain.PaymentStatus(strings.ToUpper(strings.TrimSpace(string(status)))))
	})
}

func (s *Service) SetInvoiceNumber(ctx context.Context, id string, invoiceNumber string) (sale domain.Sale, err error) {
	defer s.observe(ctx, "sale_invoice", time.Now(), &err)
	return s.lifecycle(ctx, "sale_invoice", id, func(ctx context.Context, id string) (*domain.Sale, error) {
		return s.orders.SetInvoiceNumber(ctx, id, invoiceNumber)
	})
}

func (s *Service) DeleteSale(ctx context.Context, id string) (err error) {
	defer s.observe(ctx, "sale_delete", time.Now(), &err)
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	_, err = s.lifecycle(ctx, "sale_delete", id, func(ctx context.Context, id string) (*domain.Sale, error) {
		return s.orders.Delete(ctx, id, s.now())
	})
	return err
}

func (s *Service) lifecycle(ctx context.Context, action string, id string, fn func(context.Context, string) (*domain.Sale, error)) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	sale, err := fn(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	s.logAudit(ctx, action, "sale", sale.ID, fmt.Sprintf("status=%s,payment=%s,invoice=%s", sale.Status, sale.PaymentStatus, sale.InvoiceNumber))
	return *sale, nil
}

// SetMonthlyTarget stores the revenue goal for a month together with what
// has been realized so far.
func (s *Service) SetMonthlyTarget(ctx context.Context, year int, month int, req domain.MonthlyTargetRequest) (target domain.MonthlyTarget, err error) {
	defer s.observe(ctx, "target_set", time.Now(), &err)
	if err := requireAdmin(ctx); err != nil {
		return domain.MonthlyTarget{}, err
	}
	if err := validatePeriod(year, month); err != nil {
		return domain.MonthlyTarget{}, err
	}
	if req.TargetRevenue.IsNegative() {
		return domain.MonthlyTarget{}, store.ErrInvalidTransaction
	}

	realized, err := s.realizedRevenue(ctx, year, month)
	if err != nil {
		return domain.MonthlyTarget{}, err
	}
	saved, err := s.repo.UpsertMonthlyTarget(ctx, domain.MonthlyTarget{
		Year:            year,
		Month:           month,
		TargetRevenue:   req.TargetRevenue,
		RealizedRevenue: &realized,
	})
	if err != nil {
		return domain.MonthlyTarget{}, err
	}
	s.logAudit(ctx, "target_set", "monthly_target", fmt.Sprintf("%04d-%02d", year, month), "target="+req.TargetRevenue.StringFixed(2))
	return *saved, nil
}

func (s *Service) GetMonthlyTarget(ctx context.Context, year int, month int) (domain.MonthlyTarget, error) {
	if err := validatePeriod(year, month); err != nil {
		return domain.MonthlyTarget{}, err
	}
	target, err := s.repo.GetMonthlyTarget(ctx, year, month)
	if err != nil {
		return domain.MonthlyTarget{}, err
	}
	return *target, nil
}

// RefreshRealizedRevenue recomputes the realized revenue of an existing
// monthly target from the stored sales.
func (s *Service) RefreshRealizedRevenue(ctx context.Context, year int, month int) (target domain.MonthlyTarget, err error) {
	defer s.observe(ctx, "target_refresh", time.Now(), &err)
	if err := validatePeriod(year, month); err != nil {
		return domain.MonthlyTarget{}, err
	}
	return s.refreshRealized(ctx, year, month)
}

func (s *Service) refreshRealized(ctx context.Context, year int, month int) (domain.MonthlyTarget, error) {
	existing, err := s.repo.GetMonthlyTarget(ctx, year, month)
	if err != nil {
		return domain.MonthlyTarget{}, err
	}
	realized, err := s.realizedRevenue(ctx, year, month)
	if err != nil {
		return domain.MonthlyTarget{}, err
	}
	existing.RealizedRevenue = &realized
	saved, err := s.repo.UpsertMonthlyTarget(ctx, *existing)
	if err != nil {
		return domain.MonthlyTarget{}, err
	}
	return *saved, nil
}

func (s *Service) realizedRevenue(ctx context.Context, year int, month int) (decimal.Decimal, error) {
	from, to := store.MonthRange(year, month)
	return s.repo.SumSalesTotal(ctx, from, to)
}

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.repo.ListStores(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidTransaction
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) observe(ctx context.Context, operation string, started time.Time, err *error) {
	s.metrics.Observe(ctx, operation, *err == nil, time.Since(started))
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrForbidden
	}
	return nil
}

func validatePeriod(year int, month int) error {
	if year < 2000 || year > 2100 || month < 1 || month > 12 {
		return fmt.Errorf("period %d-%d: %w", year, month, store.ErrInvalidTransaction)
	}
	return nil
}
