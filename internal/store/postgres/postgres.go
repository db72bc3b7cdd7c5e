package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"posledger/internal/domain"
	"posledger/internal/ident"
	"posledger/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, wrapErr(err)
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, wrapErr(err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(barcode, ''), price_cents, cost_cents, stock, active
		FROM products
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Barcode, &p.PriceCents, &p.CostCents, &p.Stock, &p.Active); err != nil {
			return nil, wrapErr(err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(barcode, ''), price_cents, cost_cents, stock, active
		FROM products
		WHERE id = $1
	`, productID).Scan(&product.ID, &product.Name, &product.Barcode, &product.PriceCents, &product.CostCents, &product.Stock, &product.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	return &product, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	if strings.TrimSpace(barcode) == "" {
		return nil, store.ErrValidation
	}

	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(barcode, ''), price_cents, cost_cents, stock, active
		FROM products
		WHERE barcode = $1
	`, barcode).Scan(&product.ID, &product.Name, &product.Barcode, &product.PriceCents, &product.CostCents, &product.Stock, &product.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if len(productIDs) == 0 {
		return map[string]domain.Product{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(barcode, ''), price_cents, cost_cents, stock, active
		FROM products
		WHERE id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	result := make(map[string]domain.Product, len(productIDs))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Barcode, &p.PriceCents, &p.CostCents, &p.Stock, &p.Active); err != nil {
			return nil, wrapErr(err)
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = ident.NewID("prod")
	}

	product.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, barcode, price_cents, cost_cents, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
	`, product.ID, product.Name, nullIfEmpty(product.Barcode), product.PriceCents, product.CostCents, product.Stock, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, wrapErr(err)
	}

	created := product
	return &created, nil
}

// AdjustStock applies the deltas in a single transaction. Increments are
// unconditional; stock sufficiency was decided by the caller before the
// write set was built.
func (s *Store) AdjustStock(ctx context.Context, deltas []domain.StockDelta) error {
	if len(deltas) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return wrapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := applyDeltas(ctx, tx, deltas); err != nil {
		return wrapErr(err)
	}
	return wrapErr(tx.Commit())
}

func applyDeltas(ctx context.Context, tx *sql.Tx, deltas []domain.StockDelta) error {
	for _, d := range deltas {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $1, updated_at = now()
			WHERE id = $2
		`, d.Qty, d.ProductID)
		if err != nil {
			return wrapErr(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return wrapErr(err)
		}
		if affected == 0 {
			return store.ErrNotFound
		}
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, deltas []domain.StockDelta) (*domain.Sale, error) {
	if strings.TrimSpace(sale.StoreID) == "" || strings.TrimSpace(sale.SellerID) == "" || len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, wrapErr(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	if sale.ID == "" {
		sale.ID = ident.NewID("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	paymentsJSON, err := json.Marshal(sale.Payments)
	if err != nil {
		return nil, wrapErr(err)
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, store_id, seller_id, client_id, receipt_type, total_cents, payments, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.ID, sale.StoreID, sale.SellerID, sale.ClientID, nullIfEmpty(sale.ReceiptType), sale.TotalCents, paymentsJSON, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, wrapErr(err)
	}

	for _, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, qty, unit_price_cents, unit_cost_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, item.ProductID, item.Qty, item.UnitPriceCents, item.UnitCostCents)
		if err != nil {
			return nil, wrapErr(err)
		}
	}

	if err := applyDeltas(ctx, pgTx, deltas); err != nil {
		return nil, wrapErr(err)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, wrapErr(err)
	}

	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	var paymentsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, seller_id, client_id, COALESCE(receipt_type, ''), total_cents, payments, created_at
		FROM sales
		WHERE id = $1
	`, saleID).Scan(&sale.ID, &sale.StoreID, &sale.SellerID, &sale.ClientID, &sale.ReceiptType, &sale.TotalCents, &paymentsRaw, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if len(paymentsRaw) > 0 {
		if err := json.Unmarshal(paymentsRaw, &sale.Payments); err != nil {
			return nil, wrapErr(err)
		}
	}

	items, err := s.saleItems(ctx, saleID)
	if err != nil {
		return nil, wrapErr(err)
	}
	sale.Items = items

	return &sale, nil
}

func (s *Store) saleItems(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, qty, unit_price_cents, unit_cost_cents
		FROM sale_items
		WHERE sale_id = $1
	`, saleID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	items := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var item domain.SaleLine
		if err := rows.Scan(&item.ProductID, &item.Qty, &item.UnitPriceCents, &item.UnitCostCents); err != nil {
			return nil, wrapErr(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

func (s *Store) ListSales(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, seller_id, client_id, COALESCE(receipt_type, ''), total_cents, payments, created_at
		FROM sales
		WHERE ($1 = '' OR store_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at ASC, id ASC
	`, storeID, nullIfZeroTime(from), nullIfZeroTime(to))
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		var paymentsRaw []byte
		if err := rows.Scan(&sale.ID, &sale.StoreID, &sale.SellerID, &sale.ClientID, &sale.ReceiptType, &sale.TotalCents, &paymentsRaw, &sale.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		if len(paymentsRaw) > 0 {
			if err := json.Unmarshal(paymentsRaw, &sale.Payments); err != nil {
				return nil, wrapErr(err)
			}
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}

	for i := range sales {
		items, err := s.saleItems(ctx, sales[i].ID)
		if err != nil {
			return nil, wrapErr(err)
		}
		sales[i].Items = items
	}

	return sales, nil
}

func (s *Store) DeleteSale(ctx context.Context, saleID string, deltas []domain.StockDelta) (*domain.Sale, error) {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return nil, wrapErr(err)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, wrapErr(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID); err != nil {
		return nil, wrapErr(err)
	}
	res, err := pgTx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
	if err != nil {
		return nil, wrapErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, wrapErr(err)
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	if err := applyDeltas(ctx, pgTx, deltas); err != nil {
		return nil, wrapErr(err)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, wrapErr(err)
	}

	return sale, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if strings.TrimSpace(expense.StoreID) == "" || expense.AmountCents < 1 {
		return nil, store.ErrValidation
	}
	if expense.ID == "" {
		expense.ID = ident.NewID("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, store_id, description, amount_cents, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, expense.ID, expense.StoreID, expense.Description, expense.AmountCents, expense.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, wrapErr(err)
	}

	created := expense
	return &created, nil
}

func (s *Store) DeleteExpense(ctx context.Context, expenseID string) (*domain.Expense, error) {
	var expense domain.Expense
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM expenses
		WHERE id = $1
		RETURNING id, store_id, description, amount_cents, created_at
	`, expenseID).Scan(&expense.ID, &expense.StoreID, &expense.Description, &expense.AmountCents, &expense.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	expense.CreatedAt = expense.CreatedAt.UTC()
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, description, amount_cents, created_at
		FROM expenses
		WHERE ($1 = '' OR store_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at ASC, id ASC
	`, storeID, nullIfZeroTime(from), nullIfZeroTime(to))
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.StoreID, &e.Description, &e.AmountCents, &e.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return expenses, nil
}

func (s *Store) CreateManualIncome(ctx context.Context, income domain.ManualIncome) (*domain.ManualIncome, error) {
	if strings.TrimSpace(income.StoreID) == "" || income.AmountCents < 1 {
		return nil, store.ErrValidation
	}
	if income.ID == "" {
		income.ID = ident.NewID("inc")
	}
	if income.CreatedAt.IsZero() {
		income.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manual_incomes (id, store_id, description, amount_cents, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, income.ID, income.StoreID, income.Description, income.AmountCents, income.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, wrapErr(err)
	}

	created := income
	return &created, nil
}

func (s *Store) DeleteManualIncome(ctx context.Context, incomeID string) (*domain.ManualIncome, error) {
	var income domain.ManualIncome
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM manual_incomes
		WHERE id = $1
		RETURNING id, store_id, description, amount_cents, created_at
	`, incomeID).Scan(&income.ID, &income.StoreID, &income.Description, &income.AmountCents, &income.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	income.CreatedAt = income.CreatedAt.UTC()
	return &income, nil
}

func (s *Store) ListManualIncomes(ctx context.Context, storeID string, from time.Time, to time.Time) ([]domain.ManualIncome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, description, amount_cents, created_at
		FROM manual_incomes
		WHERE ($1 = '' OR store_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at ASC, id ASC
	`, storeID, nullIfZeroTime(from), nullIfZeroTime(to))
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	incomes := make([]domain.ManualIncome, 0, 32)
	for rows.Next() {
		var inc domain.ManualIncome
		if err := rows.Scan(&inc.ID, &inc.StoreID, &inc.Description, &inc.AmountCents, &inc.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		inc.CreatedAt = inc.CreatedAt.UTC()
		incomes = append(incomes, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return incomes, nil
}

func (s *Store) CreateNote(ctx context.Context, note domain.Note, deltas []domain.StockDelta) (*domain.Note, error) {
	if strings.TrimSpace(note.StoreID) == "" || note.AmountCents < 1 {
		return nil, store.ErrValidation
	}
	if note.Type != domain.NoteTypeCredit && note.Type != domain.NoteTypeDebit {
		return nil, store.ErrValidation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, wrapErr(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	if note.ID == "" {
		note.ID = ident.NewID("note")
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}

	itemsJSON, err := json.Marshal(note.ReturnedItems)
	if err != nil {
		return nil, wrapErr(err)
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO notes (id, store_id, note_type, sale_id, client_id, reason, amount_cents, returned_items, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, note.ID, note.StoreID, note.Type, nullIfEmpty(note.SaleID), note.ClientID, note.Reason, note.AmountCents, itemsJSON, note.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, wrapErr(err)
	}

	if err := applyDeltas(ctx, pgTx, deltas); err != nil {
		return nil, wrapErr(err)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, wrapErr(err)
	}

	return &note, nil
}

func (s *Store) GetNote(ctx context.Context, noteID string) (*domain.Note, error) {
	var note domain.Note
	var itemsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, note_type, COALESCE(sale_id, ''), client_id, reason, amount_cents, returned_items, created_at
		FROM notes
		WHERE id = $1
	`, noteID).Scan(&note.ID, &note.StoreID, &note.Type, &note.SaleID, &note.ClientID, &note.Reason, &note.AmountCents, &itemsRaw, &note.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	note.CreatedAt = note.CreatedAt.UTC()
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &note.ReturnedItems); err != nil {
			return nil, wrapErr(err)
		}
	}
	return &note, nil
}

// DeleteNote removes the note record without touching stock. Goods restored
// by a credit note stay on the shelf.
func (s *Store) DeleteNote(ctx context.Context, noteID string) (*domain.Note, error) {
	var note domain.Note
	var itemsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM notes
		WHERE id = $1
		RETURNING id, store_id, note_type, COALESCE(sale_id, ''), client_id, reason, amount_cents, returned_items, created_at
	`, noteID).Scan(&note.ID, &note.StoreID, &note.Type, &note.SaleID, &note.ClientID, &note.Reason, &note.AmountCents, &itemsRaw, &note.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	note.CreatedAt = note.CreatedAt.UTC()
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &note.ReturnedItems); err != nil {
			return nil, wrapErr(err)
		}
	}
	return &note, nil
}

func (s *Store) ListNotes(ctx context.Context, storeID string, noteType string, from time.Time, to time.Time) ([]domain.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, note_type, COALESCE(sale_id, ''), client_id, reason, amount_cents, returned_items, created_at
		FROM notes
		WHERE ($1 = '' OR store_id = $1)
		  AND ($2 = '' OR note_type = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY created_at ASC, id ASC
	`, storeID, noteType, nullIfZeroTime(from), nullIfZeroTime(to))
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	notes := make([]domain.Note, 0, 32)
	for rows.Next() {
		var note domain.Note
		var itemsRaw []byte
		if err := rows.Scan(&note.ID, &note.StoreID, &note.Type, &note.SaleID, &note.ClientID, &note.Reason, &note.AmountCents, &itemsRaw, &note.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		note.CreatedAt = note.CreatedAt.UTC()
		if len(itemsRaw) > 0 {
			if err := json.Unmarshal(itemsRaw, &note.ReturnedItems); err != nil {
				return nil, wrapErr(err)
			}
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return notes, nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.StoreID) == "" || strings.TrimSpace(shift.SellerID) == "" {
		return nil, store.ErrValidation
	}
	if shift.OpeningCents < 0 {
		return nil, store.ErrValidation
	}

	if shift.ID == "" {
		shift.ID = ident.NewID("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusOpen
	shift.ClosedAt = nil
	shift.SalesTotalCents = 0
	shift.ClosingTotalCents = 0

	// A partial unique index on (store_id, seller_id) WHERE status = 'open'
	// rejects a second open shift for the same seller and scope.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (id, store_id, seller_id, opening_cents, sales_total_cents, closing_total_cents, status, opened_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, shift.ID, shift.StoreID, shift.SellerID, shift.OpeningCents, shift.SalesTotalCents, shift.ClosingTotalCents, shift.Status, shift.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, wrapErr(err)
	}

	created := shift
	return &created, nil
}

func (s *Store) GetShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, seller_id, opening_cents, sales_total_cents, closing_total_cents, status, opened_at, closed_at
		FROM shifts
		WHERE id = $1
	`, shiftID).Scan(
		&shift.ID, &shift.StoreID, &shift.SellerID, &shift.OpeningCents,
		&shift.SalesTotalCents, &shift.ClosingTotalCents, &shift.Status, &shift.OpenedAt, &closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		shift.ClosedAt = &t
	}
	return &shift, nil
}

func (s *Store) GetOpenShift(ctx context.Context, storeID string, sellerID string) (*domain.Shift, error) {
	var shift domain.Shift
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, seller_id, opening_cents, sales_total_cents, closing_total_cents, status, opened_at
		FROM shifts
		WHERE store_id = $1 AND seller_id = $2 AND status = $3
	`, storeID, sellerID, domain.ShiftStatusOpen).Scan(
		&shift.ID, &shift.StoreID, &shift.SellerID, &shift.OpeningCents,
		&shift.SalesTotalCents, &shift.ClosingTotalCents, &shift.Status, &shift.OpenedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	return &shift, nil
}

func (s *Store) CloseShift(ctx context.Context, shiftID string, salesTotalCents int64, closingTotalCents int64, closedAt time.Time) (*domain.Shift, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, wrapErr(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	var shift domain.Shift
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, store_id, seller_id, opening_cents, status, opened_at
		FROM shifts
		WHERE id = $1
		FOR UPDATE
	`, shiftID).Scan(&shift.ID, &shift.StoreID, &shift.SellerID, &shift.OpeningCents, &shift.Status, &shift.OpenedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrValidation
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE shifts
		SET status = $2, sales_total_cents = $3, closing_total_cents = $4, closed_at = $5
		WHERE id = $1
	`, shiftID, domain.ShiftStatusClosed, salesTotalCents, closingTotalCents, closedAt)
	if err != nil {
		return nil, wrapErr(err)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, wrapErr(err)
	}

	shift.Status = domain.ShiftStatusClosed
	shift.SalesTotalCents = salesTotalCents
	shift.ClosingTotalCents = closingTotalCents
	shift.ClosedAt = &closedAt
	shift.OpenedAt = shift.OpenedAt.UTC()
	return &shift, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = ident.NewID("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return wrapErr(err)
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, storeID, nullIfZeroTime(from), nullIfZeroTime(to), limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = "seller"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return wrapErr(err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return users, nil
}

// wrapErr classifies driver failures under ErrPersistence. Taxonomy errors
// pass through untouched so errors.Is keeps working across the boundary.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrValidation) || errors.Is(err, store.ErrInsufficientStock) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return fmt.Errorf("%w: %v", store.ErrPersistence, err)
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

func nullIfZeroTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
