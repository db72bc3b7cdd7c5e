package domain

import "time"

// WalkInClient is the sentinel client reference used for anonymous
// over-the-counter sales.
const WalkInClient = "walk-in"

type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Barcode    string `json:"barcode,omitempty"`
	PriceCents int64  `json:"price_cents"`
	CostCents  int64  `json:"cost_cents"`
	Stock      int    `json:"stock"`
	Active     bool   `json:"active"`
}

// StockDelta is one atomic increment against a product's stock. Negative
// quantities decrement. Deltas commute, so concurrent adjustments from
// different sessions converge regardless of interleaving.
type StockDelta struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type SaleLine struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	UnitCostCents  int64  `json:"unit_cost_cents"`
}

type Payment struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
}

type Sale struct {
	ID          string     `json:"id"`
	StoreID     string     `json:"store_id"`
	SellerID    string     `json:"seller_id"`
	ClientID    string     `json:"client_id"`
	ReceiptType string     `json:"receipt_type,omitempty"`
	TotalCents  int64      `json:"total_cents"`
	Items       []SaleLine `json:"items"`
	Payments    []Payment  `json:"payments"`
	CreatedAt   time.Time  `json:"created_at"`
}

type SaleItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type RecordSaleRequest struct {
	StoreID     string          `json:"store_id"`
	SellerID    string          `json:"seller_id"`
	ClientID    string          `json:"client_id"`
	ReceiptType string          `json:"receipt_type"`
	Items       []SaleItemInput `json:"items"`
	Payments    []Payment       `json:"payments"`
}

type Expense struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

type ManualIncome struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

type ReturnedItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type Note struct {
	ID            string         `json:"id"`
	StoreID       string         `json:"store_id"`
	Type          string         `json:"type"`
	SaleID        string         `json:"sale_id,omitempty"`
	ClientID      string         `json:"client_id"`
	Reason        string         `json:"reason"`
	AmountCents   int64          `json:"amount_cents"`
	ReturnedItems []ReturnedItem `json:"returned_items,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type NoteRequest struct {
	StoreID       string         `json:"store_id"`
	Type          string         `json:"type"`
	SaleID        string         `json:"sale_id"`
	ClientID      string         `json:"client_id"`
	Reason        string         `json:"reason"`
	AmountCents   int64          `json:"amount_cents"`
	ReturnedItems []ReturnedItem `json:"returned_items"`
}

type Shift struct {
	ID                string     `json:"id"`
	StoreID           string     `json:"store_id"`
	SellerID          string     `json:"seller_id"`
	OpeningCents      int64      `json:"opening_cents"`
	SalesTotalCents   int64      `json:"sales_total_cents,omitempty"`
	ClosingTotalCents int64      `json:"closing_total_cents,omitempty"`
	Status            string     `json:"status"`
	OpenedAt          time.Time  `json:"opened_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

type ShiftOpenRequest struct {
	StoreID      string `json:"store_id"`
	SellerID     string `json:"seller_id"`
	OpeningCents int64  `json:"opening_cents"`
}

type ShiftCloseResult struct {
	Shift           Shift `json:"shift"`
	SalesTotalCents int64 `json:"sales_total_cents"`
	FinalTotalCents int64 `json:"final_total_cents"`
}

// MovementRow is one line in the unified daily or monthly movement view.
// Sales and manual incomes carry positive display amounts, expenses negative.
type MovementRow struct {
	Kind         string    `json:"kind"`
	RecordID     string    `json:"record_id"`
	Description  string    `json:"description"`
	DisplayCents int64     `json:"display_cents"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	MovementKindSale    = "sale"
	MovementKindIncome  = "income"
	MovementKindExpense = "expense"
)

// MovementSort selects the column and direction for movement views. The zero
// value sorts by creation time, newest first.
type MovementSort struct {
	Column    string `json:"column"`
	Ascending bool   `json:"ascending"`
}

// MovementReport carries the merged rows plus a count of records that were
// skipped because their timestamps could not be interpreted.
type MovementReport struct {
	Rows           []MovementRow `json:"rows"`
	SkippedRecords int           `json:"skipped_records"`
}

type PaymentBreakdown struct {
	Date     string           `json:"date"`
	StoreID  string           `json:"store_id"`
	ByMethod map[string]int64 `json:"by_method"`
}

/// CashProjection is the expected cash-drawer balance for a day:
// cash sales plus manual incomes minus expenses.
type CashProjection struct {
	Date           string `json:"date"`
	StoreID        string `json:"store_id"`
	CashSalesCents int64  `json:"cash_sales_cents"`
	IncomeCents    int64  `json:"income_cents"`
	ExpenseCents   int64  `json:"expense_cents"`
	ExpectedCents  int64  `json:"expected_cents"`
}

type RankedProduct struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	Qty          int    `json:"qty"`
	RevenueCents int64  `json:"revenue_cents"`
}

type SellerRank struct {
	SellerID   string `json:"seller_id"`
	TotalCents int64  `json:"total_cents"`
	SaleCount  int    `json:"sale_count"`
}

type HeatmapCell struct {
	DayOfWeek int `json:"day_of_week"`
	Hour      int `json:"hour"`
	Count     int `json:"count"`
}

// MonthlyRollup bundles the month-scoped rankings computed in a single pass
// over the month's sales. It is the unit cached by the report cache.
type MonthlyRollup struct {
	StoreID     string          `json:"store_id"`
	Month       int             `json:"month"`
	Year        int             `json:"year"`
	TopProducts []RankedProduct `json:"top_products"`
	Sellers     []SellerRank    `json:"sellers"`
	Heatmap     []HeatmapCell   `json:"heatmap"`
	GeneratedAt time.Time       `json:"generated_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
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

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials. The
// Password field holds a bcrypt hash, never plaintext.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	NoteTypeCredit = "credit"
	NoteTypeDebit  = "debit"
)

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

const PaymentMethodCash = "cash"
