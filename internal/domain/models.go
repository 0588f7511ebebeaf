package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownCity marks a city that could not be determined from the source data.
const UnknownCity = "Unknown"

type SaleStatus string

const (
	SaleStatusPending  SaleStatus = "PENDING"
	SaleStatusApproved SaleStatus = "APPROVED"
	SaleStatusShipped  SaleStatus = "SHIPPED"
	SaleStatusRejected SaleStatus = "REJECTED"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusPending, SaleStatusApproved, SaleStatusShipped, SaleStatusRejected:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "PAID"
	PaymentUnpaid PaymentStatus = "UNPAID"
)

func (p PaymentStatus) Valid() bool {
	return p == PaymentPaid || p == PaymentUnpaid
}

// Store is reference data administered outside this service.
type Store struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	City   string `json:"city"`
	Region string `json:"region"`
}

type Customer struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	City         string     `json:"city"`
	StoreCode    string     `json:"store_code,omitempty"`
	ContactName  string     `json:"contact_name,omitempty"`
	ContactTitle string     `json:"contact_title,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Email        string     `json:"email,omitempty"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Product struct {
	ID        string           `json:"id"`
	Code      string           `json:"code"`
	Name      string           `json:"name"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Cost      *decimal.Decimal `json:"cost,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Sale is one transaction line. Its natural identity for re-imports is
// (Date, StoreName, CustomerName, ItemName).
type Sale struct {
	ID            string          `json:"id"`
	Date          time.Time       `json:"date"`
	StoreCode     string          `json:"store_code,omitempty"`
	StoreName     string          `json:"store_name"`
	City          string          `json:"city"`
	Region        string          `json:"region,omitempty"`
	Salesperson   string          `json:"salesperson,omitempty"`
	CustomerName  string          `json:"customer_name"`
	CustomerID    string          `json:"customer_id,omitempty"`
	ItemName      string          `json:"item_name"`
	ProductID     string          `json:"product_id,omitempty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int             `json:"quantity"`
	Total         decimal.Decimal `json:"total"`
	Profit        decimal.Decimal `json:"profit"`
	IsShipped     bool            `json:"is_shipped"`
	Status        SaleStatus      `json:"status"`
	WaybillNumber string          `json:"waybill_number,omitempty"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	OrderNumber   string          `json:"order_number,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	SplitFromID   string          `json:"split_from_id,omitempty"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (s Sale) Key() SaleKey {
	return SaleKey{Date: DateOnly(s.Date), StoreName: s.StoreName, CustomerName: s.CustomerName, ItemName: s.ItemName}
}

func (s Sale) Deleted() bool {
	return s.DeletedAt != nil
}

// EnrichFromStore fills missing store details from the store record. A
// known store city replaces an unknown sale city.
func (s *Sale) EnrichFromStore(st Store) {
	if s.StoreName == "" {
		s.StoreName = st.Name
	}
	if !KnownCity(s.City) && KnownCity(st.City) {
		s.City = st.City
	}
	if s.Region == "" {
		s.Region = st.Region
	}
}

type SaleKey struct {
	Date         time.Time
	StoreName    string
	CustomerName string
	ItemName     string
}

type MonthlyTarget struct {
	Year            int              `json:"year"`
	Month           int              `json:"month"`
	TargetRevenue   decimal.Decimal  `json:"target_revenue"`
	RealizedRevenue *decimal.Decimal `json:"realized_revenue,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type SaleFilter struct {
	Year           int        `json:"year,omitempty"`
	Month          int        `json:"month,omitempty"`
	Status         SaleStatus `json:"status,omitempty"`
	IncludeDeleted bool       `json:"include_deleted,omitempty"`
	Limit          int        `json:"limit,omitempty"`
}

type SaleDraft struct {
	Date          string          `json:"date"`
	StoreCode     string          `json:"store_code"`
	StoreName     string          `json:"store_name"`
	City          string          `json:"city"`
	Region        string          `json:"region"`
	Salesperson   string          `json:"salesperson"`
	CustomerName  string          `json:"customer_name"`
	ItemName      string          `json:"item_name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int             `json:"quantity"`
	Total         decimal.Decimal `json:"total"`
	Profit        decimal.Decimal `json:"profit"`
	Approved      bool            `json:"approved"`
	InvoiceNumber string          `json:"invoice_number"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
}

type ShipRequest struct {
	Quantity      int    `json:"quantity"`
	WaybillNumber string `json:"waybill_number"`
}

type ShipResult struct {
	Shipped   Sale  `json:"shipped"`
	Remainder *Sale `json:"remainder,omitempty"`
}

type PaymentRequest struct {
	PaymentStatus PaymentStatus `json:"payment_status"`
}

type InvoiceRequest struct {
	InvoiceNumber string `json:"invoice_number"`
}

type MonthlyTargetRequest struct {
	TargetRevenue decimal.Decimal `json:"target_revenue"`
}

// ImportSummary is what the legacy workbook import reports back; it is
// never replaced by a raw error except when the workbook cannot be opened.
type ImportSummary struct {
	ImportedCount        int      `json:"imported_count"`
	CreatedCount         int      `json:"created_count"`
	UpdatedCount         int      `json:"updated_count"`
	CreatedCustomerCount int      `json:"created_customer_count"`
	CreatedProductCount  int      `json:"created_product_count"`
	SkippedRowCount      int      `json:"skipped_row_count"`
	SheetsProcessed      []string `json:"sheets_processed"`
	MonthsTouched        []string `json:"months_touched"`
	Errors               []string `json:"errors"`
	TruncatedErrorCount  int      `json:"truncated_error_count"`
}

type RosterSummary struct {
	ProcessedCount      int      `json:"processed_count"`
	CreatedCount        int      `json:"created_count"`
	UpdatedCount        int      `json:"updated_count"`
	Errors              []string `json:"errors"`
	TruncatedErrorCount int      `json:"truncated_error_count"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type OperatorUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// KnownCity reports whether city carries real information.
func KnownCity(city string) bool {
	return city != "" && city != UnknownCity
}
