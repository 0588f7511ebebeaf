package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/maps"

	"salestrack/internal/domain"
	"salestrack/internal/store"
	"salestrack/internal/xid"
)

// Store keeps every record in process memory. Writers are serialized on
// txMu: a WithinTx call holds it for its whole callback, plain writes hold
// it for one call. A failed transaction restores the snapshot taken on
// entry, which therefore only ever drops the transaction's own writes.
type Store struct {
	mu              sync.RWMutex
	txMu            sync.Mutex
	stores          map[string]domain.Store
	customersByID   map[string]domain.Customer
	customerOrder   []string
	productsByID    map[string]domain.Product
	salesByID       map[string]domain.Sale
	saleOrder       []string
	targets         map[string]domain.MonthlyTarget
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		stores:          make(map[string]domain.Store),
		customersByID:   make(map[string]domain.Customer),
		customerOrder:   make([]string, 0, 64),
		productsByID:    make(map[string]domain.Product),
		salesByID:       make(map[string]domain.Sale),
		saleOrder:       make([]string, 0, 256),
		targets:         make(map[string]domain.MonthlyTarget),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with the reference store list used in
// development mode.
func NewSeeded() *Store {
	s := New()
	for _, st := range []domain.Store{
		{Code: "T101", Name: "Kadıköy", City: "İstanbul", Region: "Marmara"},
		{Code: "T102", Name: "Bakırköy", City: "İstanbul", Region: "Marmara"},
		{Code: "T201", Name: "Kızılay", City: "Ankara", Region: "İç Anadolu"},
		{Code: "T301", Name: "Alsancak", City: "İzmir", Region: "Ege"},
		{Code: "T401", Name: "İzmit Merkez", City: "İzmit", Region: "Marmara"},
	} {
		s.stores[st.Code] = st
	}
	return s
}

type snapshot struct {
	stores          map[string]domain.Store
	customersByID   map[string]domain.Customer
	customerOrder   []string
	productsByID    map[string]domain.Product
	salesByID       map[string]domain.Sale
	saleOrder       []string
	targets         map[string]domain.MonthlyTarget
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return snapshot{
		stores:          maps.Clone(s.stores),
		customersByID:   maps.Clone(s.customersByID),
		customerOrder:   slices.Clone(s.customerOrder),
		productsByID:    maps.Clone(s.productsByID),
		salesByID:       maps.Clone(s.salesByID),
		saleOrder:       slices.Clone(s.saleOrder),
		targets:         maps.Clone(s.targets),
		auditLogs:       slices.Clone(s.auditLogs),
		usersByUsername: maps.Clone(s.usersByUsername),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stores = snap.stores
	s.customersByID = snap.customersByID
	s.customerOrder = snap.customerOrder
	s.productsByID = snap.productsByID
	s.salesByID = snap.salesByID
	s.saleOrder = snap.saleOrder
	s.targets = snap.targets
	s.auditLogs = snap.auditLogs
	s.usersByUsername = snap.usersByUsername
}

func (s *Store) WithinTx(ctx context.Context, fn func(store.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(txStore{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// txStore is handed to WithinTx callbacks so nested calls join the
// running transaction instead of waiting on txMu.
type txStore struct {
	*Store
}

func (t txStore) WithinTx(_ context.Context, fn func(store.Repository) error) error {
	return fn(t)
}

func (s *Store) GetStoreByCode(_ context.Context, code string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stores[strings.TrimSpace(code)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (s *Store) upsertStore(_ context.Context, st domain.Store) error {
	st.Code = strings.TrimSpace(st.Code)
	if st.Code == "" || strings.TrimSpace(st.Name) == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores[st.Code] = st
	return nil
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := maps.Values(s.stores)
	slices.SortFunc(result, func(a, b domain.Store) int {
		return strings.Compare(a.Code, b.Code)
	})
	return result, nil
}

func (s *Store) FindCustomerByName(_ context.Context, name string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.customerOrder {
		customer := s.customersByID[id]
		if customer.Name == name {
			return cloneCustomer(customer), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) createCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if _, exists := s.customersByID[customer.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	customer.CreatedAt = now
	customer.UpdatedAt = now
	s.customersByID[customer.ID] = customer
	s.customerOrder = append(s.customerOrder, customer.ID)
	return cloneCustomer(customer), nil
}

func (s *Store) updateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customersByID[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = time.Now().UTC()
	s.customersByID[customer.ID] = customer
	return cloneCustomer(customer), nil
}

func (s *Store) FindProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.productsByID {
		if p.Name == name {
			return cloneProduct(p), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) createProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || strings.TrimSpace(product.Code) == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.productsByID {
		if p.Code == product.Code || p.Name == product.Name {
			return nil, fmt.Errorf("product %s: %w", product.Code, store.ErrConflict)
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.productsByID[product.ID] = product
	return cloneProduct(product), nil
}

func (s *Store) updateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.productsByID[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// code and name are identity; only the figures change
	existing.Price = product.Price
	existing.Cost = product.Cost
	existing.UpdatedAt = time.Now().UTC()
	s.productsByID[product.ID] = existing
	return cloneProduct(existing), nil
}

func (s *Store) MaxProductSeq(_ context.Context, prefix string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var highest int64
	for _, p := range s.productsByID {
		if seq, ok := store.SeqFromCode(p.Code, prefix); ok && seq > highest {
			highest = seq
		}
	}
	return highest, nil
}

func (s *Store) FindSaleByKey(_ context.Context, key domain.SaleKey) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if sale.SplitFromID != "" {
			continue
		}
		k := sale.Key()
		if k.Date.Equal(key.Date) && k.StoreName == key.StoreName && k.CustomerName == key.CustomerName && k.ItemName == key.ItemName {
			return cloneSale(sale), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListSplitRemainders(_ context.Context, parentID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 2)
	for _, id := range s.saleOrder {
		if sale := s.salesByID[id]; sale.SplitFromID == parentID {
			result = append(result, *cloneSale(sale))
		}
	}
	return result, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) createSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if err := validateSale(sale); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	sale.Date = domain.DateOnly(sale.Date)
	sale.CreatedAt = now
	sale.UpdatedAt = now
	s.salesByID[sale.ID] = sale
	s.saleOrder = append(s.saleOrder, sale.ID)
	return cloneSale(sale), nil
}

func (s *Store) updateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if err := validateSale(sale); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.salesByID[sale.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.Date = domain.DateOnly(sale.Date)
	sale.CreatedAt = existing.CreatedAt
	sale.UpdatedAt = time.Now().UTC()
	s.salesByID[sale.ID] = sale
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, id := range s.saleOrder {
		sale := s.salesByID[id]
		if !filter.IncludeDeleted && sale.Deleted() {
			continue
		}
		if filter.Year > 0 && sale.Date.Year() != filter.Year {
			continue
		}
		if filter.Month > 0 && int(sale.Date.Month()) != filter.Month {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		result = append(result, *cloneSale(sale))
	}

	slices.SortStableFunc(result, func(a, b domain.Sale) int {
		return b.Date.Compare(a.Date)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CountSales(_ context.Context, includeDeleted bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sale := range s.salesByID {
		if includeDeleted || !sale.Deleted() {
			count++
		}
	}
	return count, nil
}

func (s *Store) MaxOrderSeq(_ context.Context, prefix string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var highest int64
	for _, sale := range s.salesByID {
		if seq, ok := store.SeqFromCode(sale.OrderNumber, prefix); ok && seq > highest {
			highest = seq
		}
	}
	return highest, nil
}

func (s *Store) SumSalesTotal(_ context.Context, from time.Time, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, sale := range s.salesByID {
		if sale.Deleted() || sale.Status == domain.SaleStatusRejected {
			continue
		}
		if sale.Date.Before(from) || !sale.Date.Before(to) {
			continue
		}
		sum = sum.Add(sale.Total)
	}
	return sum, nil
}

func (s *Store) upsertMonthlyTarget(_ context.Context, target domain.MonthlyTarget) (*domain.MonthlyTarget, error) {
	if target.Month < 1 || target.Month > 12 || target.Year < 1 || target.TargetRevenue.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target.UpdatedAt = time.Now().UTC()
	s.targets[targetKey(target.Year, target.Month)] = target
	saved := target
	return &saved, nil
}

func (s *Store) GetMonthlyTarget(_ context.Context, year int, month int) (*domain.MonthlyTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.targets[targetKey(year, month)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &target, nil
}

func (s *Store) createAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) createUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "operator"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := maps.Values(s.usersByUsername)
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) updateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
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

func targetKey(year int, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func cloneCustomer(src domain.Customer) *domain.Customer {
	dup := src
	if src.RegisteredAt != nil {
		at := *src.RegisteredAt
		dup.RegisteredAt = &at
	}
	return &dup
}

func cloneProduct(src domain.Product) *domain.Product {
	dup := src
	if src.Price != nil {
		price := *src.Price
		dup.Price = &price
	}
	if src.Cost != nil {
		cost := *src.Cost
		dup.Cost = &cost
	}
	return &dup
}

func cloneSale(src domain.Sale) *domain.Sale {
	dup := src
	if src.DeletedAt != nil {
		at := *src.DeletedAt
		dup.DeletedAt = &at
	}
	return &dup
}

// Writes made outside a transaction wait for any running transaction so a
// rollback cannot swallow them.

func (s *Store) UpsertStore(ctx context.Context, st domain.Store) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.upsertStore(ctx, st)
}

func (t txStore) UpsertStore(ctx context.Context, st domain.Store) error {
	return t.upsertStore(ctx, st)
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.createCustomer(ctx, customer)
}

func (t txStore) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	return t.createCustomer(ctx, customer)
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.updateCustomer(ctx, customer)
}

func (t txStore) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	return t.updateCustomer(ctx, customer)
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.createProduct(ctx, product)
}

func (t txStore) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	return t.createProduct(ctx, product)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.updateProduct(ctx, product)
}

func (t txStore) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	return t.updateProduct(ctx, product)
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.createSale(ctx, sale)
}

func (t txStore) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	return t.createSale(ctx, sale)
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.updateSale(ctx, sale)
}

func (t txStore) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	return t.updateSale(ctx, sale)
}

func (s *Store) UpsertMonthlyTarget(ctx context.Context, target domain.MonthlyTarget) (*domain.MonthlyTarget, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.upsertMonthlyTarget(ctx, target)
}

func (t txStore) UpsertMonthlyTarget(ctx context.Context, target domain.MonthlyTarget) (*domain.MonthlyTarget, error) {
	return t.upsertMonthlyTarget(ctx, target)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.createAuditLog(ctx, entry)
}

func (t txStore) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	return t.createAuditLog(ctx, entry)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.createUser(ctx, user)
}

func (t txStore) CreateUser(ctx context.Context, user domain.UserAccount) error {
	return t.createUser(ctx, user)
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.updateUserPassword(ctx, username, password)
}

func (t txStore) UpdateUserPassword(ctx context.Context, username string, password string) error {
	return t.updateUserPassword(ctx, username, password)
}
