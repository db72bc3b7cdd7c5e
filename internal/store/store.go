package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"posledger/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPersistence       = errors.New("persistence failure")
)

// InsufficientStockError reports which product ran short during a pre-check.
// It unwraps to ErrInsufficientStock so callers can match with errors.Is.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Repository is the ledger persistence contract. The composite write methods
// (CreateSale, DeleteSale, CreateNote) apply their record write and stock
// deltas as one atomic unit; they never re-check stock sufficiency, that
// decision belongs to the caller before the write set is assembled.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, deltas []domain.StockDelta) error

	CreateSale(ctx context.Context, sale domain.Sale, deltas []domain.StockDelta) (*domain.Sale, error)
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.Sale, error)
	DeleteSale(ctx context.Context, saleID string, deltas []domain.StockDelta) (*domain.Sale, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, expenseID string) (*domain.Expense, error)
	ListExpenses(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.Expense, error)

	CreateManualIncome(ctx context.Context, income domain.ManualIncome) (*domain.ManualIncome, error)
	DeleteManualIncome(ctx context.Context, incomeID string) (*domain.ManualIncome, error)
	ListManualIncomes(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.ManualIncome, error)

	CreateNote(ctx context.Context, note domain.Note, deltas []domain.StockDelta) (*domain.Note, error)
	GetNote(ctx context.Context, noteID string) (*domain.Note, error)
	DeleteNote(ctx context.Context, noteID string) (*domain.Note, error)
	ListNotes(ctx context.Context, storeID string, noteType string, from time.Time, to time.Time) ([]domain.Note, error)

	CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetShift(ctx context.Context, shiftID string) (*domain.Shift, error)
	GetOpenShift(ctx context.Context, storeID string, sellerID string) (*domain.Shift, error)
	CloseShift(ctx context.Context, shiftID string, salesTotalCents int64, closingTotalCents int64, closedAt time.Time) (*domain.Shift, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
