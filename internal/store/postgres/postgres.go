package postgres

import (
	"bufio"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"salestrack/internal/domain"
	"salestrack/internal/store"
	"salestrack/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	q  querier
	tx bool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, q: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Statements are idempotent so it runs
// on every start.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(store.Repository) error) error {
	if s.tx {
		return fn(s)
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(&Store{db: s.db, q: pgTx, tx: true}); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) GetStoreByCode(ctx context.Context, code string) (*domain.Store, error) {
	var st domain.Store
	err := s.q.QueryRowContext(ctx, `
		SELECT code, name, city, region
		FROM stores
		WHERE code = $1
	`, strings.TrimSpace(code)).Scan(&st.Code, &st.Name, &st.City, &st.Region)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) UpsertStore(ctx context.Context, st domain.Store) error {
	st.Code = strings.TrimSpace(st.Code)
	if st.Code == "" || strings.TrimSpace(st.Name) == "" {
		return store.ErrInvalidTransaction
	}
	if st.City == "" {
		st.City = domain.UnknownCity
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO stores (code, name, city, region)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (code)
		DO UPDATE SET name = EXCLUDED.name, city = EXCLUDED.city, region = EXCLUDED.region
	`, st.Code, st.Name, st.City, st.Region)
	return err
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT code, name, city, region
		FROM stores
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 32)
	for rows.Next() {
		var st domain.Store
		if err := rows.Scan(&st.Code, &st.Name, &st.City, &st.Region); err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

const customerColumns = `id, name, city, COALESCE(store_code,''), COALESCE(contact_name,''),
	COALESCE(contact_title,''), COALESCE(phone,''), COALESCE(email,''), registered_at, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (*domain.Customer, error) {
	var c domain.Customer
	var registeredAt sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &c.City, &c.StoreCode, &c.ContactName, &c.ContactTitle, &c.Phone, &c.Email, &registeredAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if registeredAt.Valid {
		at := registeredAt.Time.UTC()
		c.RegisteredAt = &at
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (s *Store) FindCustomerByName(ctx context.Context, name string) (*domain.Customer, error) {
	customer, err := scanCustomer(s.q.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE name = $1
		ORDER BY seq
		LIMIT 1
	`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.City == "" {
		customer.City = domain.UnknownCity
	}
	now := time.Now().UTC()
	customer.CreatedAt = now
	customer.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO customers (
			id, name, city, store_code, contact_name, contact_title, phone, email, registered_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, customer.ID, customer.Name, customer.City, nullIfEmpty(customer.StoreCode), nullIfEmpty(customer.ContactName),
		nullIfEmpty(customer.ContactTitle), nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email),
		nullDate(customer.RegisteredAt), customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}

	updated, err := scanCustomer(s.q.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, city = $3, store_code = $4, contact_name = $5, contact_title = $6,
			phone = $7, email = $8, registered_at = $9, updated_at = now()
		WHERE id = $1
		RETURNING `+customerColumns,
		customer.ID, customer.Name, customer.City, nullIfEmpty(customer.StoreCode), nullIfEmpty(customer.ContactName),
		nullIfEmpty(customer.ContactTitle), nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email),
		nullDate(customer.RegisteredAt)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

const productColumns = `id, code, name, price, cost, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var price, cost decimal.NullDecimal
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &price, &cost, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if price.Valid {
		p.Price = &price.Decimal
	}
	if cost.Valid {
		p.Cost = &cost.Decimal
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	product, err := scanProduct(s.q.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE name = $1
	`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || strings.TrimSpace(product.Code) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	// DO NOTHING keeps an enclosing transaction usable after a lost race.
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO products (id, code, name, price, cost, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT DO NOTHING
	`, product.ID, product.Code, product.Name, nullDecimal(product.Price), nullDecimal(product.Cost), product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("product %s: %w", product.Code, store.ErrConflict)
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	updated, err := scanProduct(s.q.QueryRowContext(ctx, `
		UPDATE products
		SET price = $2, cost = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, nullDecimal(product.Price), nullDecimal(product.Cost)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) MaxProductSeq(ctx context.Context, prefix string) (int64, error) {
	return s.maxSeq(ctx, "products", "code", prefix)
}

func (s *Store) MaxOrderSeq(ctx context.Context, prefix string) (int64, error) {
	return s.maxSeq(ctx, "sales", "order_number", prefix)
}

func (s *Store) maxSeq(ctx context.Context, table string, column string, prefix string) (int64, error) {
	if table != "products" && table != "sales" {
		return 0, fmt.Errorf("unsupported sequence table")
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(MAX(CAST(substr(%[2]s, length($1) + 1) AS BIGINT)), 0)
		FROM %[1]s
		WHERE starts_with(%[2]s, $1)
			AND substr(%[2]s, length($1) + 1) ~ '^[0-9]+$'
	`, table, column)

	var highest int64
	if err := s.q.QueryRowContext(ctx, query, prefix).Scan(&highest); err != nil {
		return 0, err
	}
	return highest, nil
}

const saleColumns = `id, sale_date, COALESCE(store_code,''), store_name, city, COALESCE(region,''),
	COALESCE(salesperson,''), customer_name, COALESCE(customer_id,''), item_name, COALESCE(product_id,''),
	unit_price, quantity, total, profit, is_shipped, status, COALESCE(waybill_number,''),
	COALESCE(invoice_number,''), payment_status, COALESCE(order_number,''), COALESCE(notes,''),
	COALESCE(split_from_id,''), deleted_at, created_at, updated_at`

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var sale domain.Sale
	var deletedAt sql.NullTime
	err := row.Scan(
		&sale.ID,
		&sale.Date,
		&sale.StoreCode,
		&sale.StoreName,
		&sale.City,
		&sale.Region,
		&sale.Salesperson,
		&sale.CustomerName,
		&sale.CustomerID,
		&sale.ItemName,
		&sale.ProductID,
		&sale.UnitPrice,
		&sale.Quantity,
		&sale.Total,
		&sale.Profit,
		&sale.IsShipped,
		&sale.Status,
		&sale.WaybillNumber,
		&sale.InvoiceNumber,
		&sale.PaymentStatus,
		&sale.OrderNumber,
		&sale.Notes,
		&sale.SplitFromID,
		&deletedAt,
		&sale.CreatedAt,
		&sale.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sale.Date = domain.DateOnly(sale.Date)
	if deletedAt.Valid {
		at := deletedAt.Time.UTC()
		sale.DeletedAt = &at
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	return &sale, nil
}

func (s *Store) FindSaleByKey(ctx context.Context, key domain.SaleKey) (*domain.Sale, error) {
	sale, err := scanSale(s.q.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE sale_date = $1
			AND store_name = $2
			AND customer_name = $3
			AND item_name = $4
			AND split_from_id IS NULL
		ORDER BY seq
		LIMIT 1
	`, domain.DateOnly(key.Date), key.StoreName, key.CustomerName, key.ItemName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSplitRemainders(ctx context.Context, parentID string) ([]domain.Sale, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE split_from_id = $1
		ORDER BY seq
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Sale, 0, 2)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.q.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if err := validateSale(sale); err != nil {
		return nil, err
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.City == "" {
		sale.City = domain.UnknownCity
	}
	sale.Date = domain.DateOnly(sale.Date)

	created, err := scanSale(s.q.QueryRowContext(ctx, `
		INSERT INTO sales (
			id, sale_date, store_code, store_name, city, region, salesperson, customer_name, customer_id,
			item_name, product_id, unit_price, quantity, total, profit, is_shipped, status,
			waybill_number, invoice_number, payment_status, order_number, notes, split_from_id,
			deleted_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,now(),now())
		RETURNING `+saleColumns,
		sale.ID, sale.Date, nullIfEmpty(sale.StoreCode), sale.StoreName, sale.City, nullIfEmpty(sale.Region),
		nullIfEmpty(sale.Salesperson), sale.CustomerName, nullIfEmpty(sale.CustomerID), sale.ItemName,
		nullIfEmpty(sale.ProductID), sale.UnitPrice, sale.Quantity, sale.Total, sale.Profit, sale.IsShipped,
		string(sale.Status), nullIfEmpty(sale.WaybillNumber), nullIfEmpty(sale.InvoiceNumber), string(sale.PaymentStatus),
		nullIfEmpty(sale.OrderNumber), nullIfEmpty(sale.Notes), nullIfEmpty(sale.SplitFromID), nullTime(sale.DeletedAt)))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if err := validateSale(sale); err != nil {
		return nil, err
	}

	updated, err := scanSale(s.q.QueryRowContext(ctx, `
		UPDATE sales
		SET sale_date = $2, store_code = $3, store_name = $4, city = $5, region = $6, salesperson = $7,
			customer_name = $8, customer_id = $9, item_name = $10, product_id = $11, unit_price = $12,
			quantity = $13, total = $14, profit = $15, is_shipped = $16, status = $17,
			waybill_number = $18, invoice_number = $19, payment_status = $20, order_number = $21,
			notes = $22, deleted_at = $23, updated_at = now()
		WHERE id = $1
		RETURNING `+saleColumns,
		sale.ID, domain.DateOnly(sale.Date), nullIfEmpty(sale.StoreCode), sale.StoreName, sale.City,
		nullIfEmpty(sale.Region), nullIfEmpty(sale.Salesperson), sale.CustomerName, nullIfEmpty(sale.CustomerID),
		sale.ItemName, nullIfEmpty(sale.ProductID), sale.UnitPrice, sale.Quantity, sale.Total, sale.Profit,
		sale.IsShipped, string(sale.Status), nullIfEmpty(sale.WaybillNumber), nullIfEmpty(sale.InvoiceNumber),
		string(sale.PaymentStatus), nullIfEmpty(sale.OrderNumber), nullIfEmpty(sale.Notes), nullTime(sale.DeletedAt)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 500
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1 OR deleted_at IS NULL)
			AND ($2 = 0 OR EXTRACT(YEAR FROM sale_date) = $2)
			AND ($3 = 0 OR EXTRACT(MONTH FROM sale_date) = $3)
			AND ($4 = '' OR status = $4)
		ORDER BY sale_date DESC, seq ASC
		LIMIT $5
	`, filter.IncludeDeleted, filter.Year, filter.Month, string(filter.Status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CountSales(ctx context.Context, includeDeleted bool) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM sales
		WHERE $1 OR deleted_at IS NULL
	`, includeDeleted).Scan(&count)
	return count, err
}

func (s *Store) SumSalesTotal(ctx context.Context, from time.Time, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0)
		FROM sales
		WHERE deleted_at IS NULL
			AND status <> 'REJECTED'
			AND sale_date >= $1
			AND sale_date < $2
	`, from, to).Scan(&sum)
	return sum, err
}

func (s *Store) UpsertMonthlyTarget(ctx context.Context, target domain.MonthlyTarget) (*domain.MonthlyTarget, error) {
	if target.Month < 1 || target.Month > 12 || target.Year < 1 || target.TargetRevenue.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	target.UpdatedAt = time.Now().UTC()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO monthly_targets (year, month, target_revenue, realized_revenue, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (year, month)
		DO UPDATE SET
			target_revenue = EXCLUDED.target_revenue,
			realized_revenue = EXCLUDED.realized_revenue,
			updated_at = EXCLUDED.updated_at
	`, target.Year, target.Month, target.TargetRevenue, nullDecimal(target.RealizedRevenue), target.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &target, nil
}

func (s *Store) GetMonthlyTarget(ctx context.Context, year int, month int) (*domain.MonthlyTarget, error) {
	target := domain.MonthlyTarget{Year: year, Month: month}
	var realized decimal.NullDecimal
	err := s.q.QueryRowContext(ctx, `
		SELECT target_revenue, realized_revenue, updated_at
		FROM monthly_targets
		WHERE year = $1 AND month = $2
	`, year, month).Scan(&target.TargetRevenue, &realized, &target.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if realized.Valid {
		target.RealizedRevenue = &realized.Decimal
	}
	target.UpdatedAt = target.UpdatedAt.UTC()
	return &target, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "operator"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func validateSale(sale domain.Sale) error {
	if strings.TrimSpace(sale.ItemName) == "" || sale.Quantity < 1 || sale.Date.IsZero() {
		return store.ErrInvalidTransaction
	}
	if !sale.Status.Valid() || !sale.PaymentStatus.Valid() {
		return store.ErrInvalidTransaction
	}
	return nil
}

// splitStatements breaks a semicolon-terminated script into statements,
// dropping blank lines and "--" comments.
func splitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return domain.DateOnly(*val)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}
