package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"posledger/internal/domain"
	"posledger/internal/ident"
	"posledger/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	salesByID       map[string]*domain.Sale
	expensesByID    map[string]domain.Expense
	incomesByID     map[string]domain.ManualIncome
	notesByID       map[string]domain.Note
	shiftsByID      map[string]domain.Shift
	openShiftByKey  map[string]string
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"seller", sellerPwd, "seller"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prod-mie-01", Name: "Mie Goreng Instan", Barcode: "8991002101234", PriceCents: 3500, CostCents: 2700, Stock: 120, Active: true},
		{ID: "prod-telur-01", Name: "Telur 10 Butir", Barcode: "8991002101241", PriceCents: 26500, CostCents: 23000, Stock: 120, Active: true},
		{ID: "prod-susu-01", Name: "Susu UHT 1L", Barcode: "8991002101258", PriceCents: 18900, CostCents: 13600, Stock: 120, Active: true},
		{ID: "prod-roti-01", Name: "Roti Tawar", Barcode: "8991002101265", PriceCents: 17800, CostCents: 12500, Stock: 120, Active: true},
		{ID: "prod-kopi-01", Name: "Kopi Sachet", Barcode: "8991002101272", PriceCents: 2600, CostCents: 1700, Stock: 120, Active: true},
		{ID: "prod-gula-01", Name: "Gula 1kg", Barcode: "8991002101289", PriceCents: 17400, CostCents: 15300, Stock: 120, Active: true},
		{ID: "prod-teh-01", Name: "Teh Celup", Barcode: "8991002101296", PriceCents: 9800, CostCents: 7300, Stock: 120, Active: true},
		{ID: "prod-air-01", Name: "Air Mineral 600ml", Barcode: "8991002101302", PriceCents: 3900, CostCents: 3200, Stock: 120, Active: true},
		{ID: "prod-keripik-01", Name: "Keripik Singkong", Barcode: "8991002101319", PriceCents: 12800, CostCents: 8100, Stock: 120, Active: true},
		{ID: "prod-sabun-01", Name: "Sabun Mandi", Barcode: "8991002101326", PriceCents: 7400, CostCents: 5000, Stock: 120, Active: true},
	}

	s := New()
	for _, p := range products {
		s.products[p.ID] = p
	}
	s.usersByUsername = seedUsers()
	return s
}

// New returns an empty store with no products or users.
func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		salesByID:       make(map[string]*domain.Sale),
		expensesByID:    make(map[string]domain.Expense),
		incomesByID:     make(map[string]domain.ManualIncome),
		notesByID:       make(map[string]domain.Note),
		shiftsByID:      make(map[string]domain.Shift),
		openShiftByKey:  make(map[string]string),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	if strings.TrimSpace(barcode) == "" {
		return nil, store.ErrValidation
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, product := range s.products {
		if product.Barcode == barcode {
			copyProduct := product
			return &copyProduct, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetProductsByIDs(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if product, exists := s.products[id]; exists {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = ident.NewID("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrValidation
	}
	if product.Barcode != "" {
		for _, p := range s.products {
			if p.Barcode == product.Barcode {
				return nil, store.ErrValidation
			}
		}
	}

	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

// AdjustStock applies every delta or none. Deltas are pure increments, a
// resulting negative stock is accepted; sufficiency decisions happen before
// the write set is assembled.
func (s *Store) AdjustStock(_ context.Context, deltas []domain.StockDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyDeltasLocked(deltas)
}

func (s *Store) applyDeltasLocked(deltas []domain.StockDelta) error {
	for _, d := range deltas {
		if _, exists := s.products[d.ProductID]; !exists {
			return store.ErrNotFound
		}
	}
	for _, d := range deltas {
		product := s.products[d.ProductID]
		product.Stock += d.Qty
		s.products[d.ProductID] = product
	}
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, deltas []domain.StockDelta) (*domain.Sale, error) {
	if strings.TrimSpace(sale.StoreID) == "" || strings.TrimSpace(sale.SellerID) == "" || len(sale.Items) == 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = ident.NewID("sale")
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrValidation
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if err := s.applyDeltasLocked(deltas); err != nil {
		return nil, err
	}

	stored := cloneSale(&sale)
	s.salesByID[sale.ID] = stored
	return cloneSale(stored), nil
}

func (s *Store) GetSale(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, storeID string, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !matchRange(sale.StoreID, storeID, sale.CreatedAt, from, to) {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return sales, nil
}

func (s *Store) DeleteSale(_ context.Context, saleID string, deltas []domain.StockDelta) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if err := s.applyDeltasLocked(deltas); err != nil {
		return nil, err
	}
	delete(s.salesByID, saleID)
	return cloneSale(sale), nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	if strings.TrimSpace(expense.StoreID) == "" || expense.AmountCents < 1 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = ident.NewID("exp")
	}
	if _, exists := s.expensesByID[expense.ID]; exists {
		return nil, store.ErrValidation
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	s.expensesByID[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) DeleteExpense(_ context.Context, expenseID string) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expense, exists := s.expensesByID[expenseID]
	if !exists {
		return nil, store.ErrNotFound
	}
	delete(s.expensesByID, expenseID)
	deleted := expense
	return &deleted, nil
}

func (s *Store) ListExpenses(_ context.Context, storeID string, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, len(s.expensesByID))
	for _, e := range s.expensesByID {
		if !matchRange(e.StoreID, storeID, e.CreatedAt, from, to) {
			continue
		}
		expenses = append(expenses, e)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return expenses, nil
}

func (s *Store) CreateManualIncome(_ context.Context, income domain.ManualIncome) (*domain.ManualIncome, error) {
	if strings.TrimSpace(income.StoreID) == "" || income.AmountCents < 1 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if income.ID == "" {
		income.ID = ident.NewID("inc")
	}
	if _, exists := s.incomesByID[income.ID]; exists {
		return nil, store.ErrValidation
	}
	if income.CreatedAt.IsZero() {
		income.CreatedAt = time.Now().UTC()
	}
	s.incomesByID[income.ID] = income
	created := income
	return &created, nil
}

func (s *Store) DeleteManualIncome(_ context.Context, incomeID string) (*domain.ManualIncome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	income, exists := s.incomesByID[incomeID]
	if !exists {
		return nil, store.ErrNotFound
	}
	delete(s.incomesByID, incomeID)
	deleted := income
	return &deleted, nil
}

func (s *Store) ListManualIncomes(_ context.Context, storeID string, from time.Time, to time.Time) ([]domain.ManualIncome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	incomes := make([]domain.ManualIncome, 0, len(s.incomesByID))
	for _, inc := range s.incomesByID {
		if !matchRange(inc.StoreID, storeID, inc.CreatedAt, from, to) {
			continue
		}
		incomes = append(incomes, inc)
	}
	slices.SortFunc(incomes, func(a, b domain.ManualIncome) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return incomes, nil
}

func (s *Store) CreateNote(_ context.Context, note domain.Note, deltas []domain.StockDelta) (*domain.Note, error) {
	if strings.TrimSpace(note.StoreID) == "" || note.AmountCents < 1 {
		return nil, store.ErrValidation
	}
	if note.Type != domain.NoteTypeCredit && note.Type != domain.NoteTypeDebit {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if note.ID == "" {
		note.ID = ident.NewID("note")
	}
	if _, exists := s.notesByID[note.ID]; exists {
		return nil, store.ErrValidation
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	if err := s.applyDeltasLocked(deltas); err != nil {
		return nil, err
	}
	s.notesByID[note.ID] = cloneNote(note)
	created := cloneNote(note)
	return &created, nil
}

func (s *Store) GetNote(_ context.Context, noteID string) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, exists := s.notesByID[noteID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyNote := cloneNote(note)
	return &copyNote, nil
}

// DeleteNote removes the note record only. Stock restored by a credit note
// stays restored; the physical goods are already back on the shelf.
func (s *Store) DeleteNote(_ context.Context, noteID string) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, exists := s.notesByID[noteID]
	if !exists {
		return nil, store.ErrNotFound
	}
	delete(s.notesByID, noteID)
	deleted := cloneNote(note)
	return &deleted, nil
}

func (s *Store) ListNotes(_ context.Context, storeID string, noteType string, from time.Time, to time.Time) ([]domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := make([]domain.Note, 0, len(s.notesByID))
	for _, n := range s.notesByID {
		if noteType != "" && n.Type != noteType {
			continue
		}
		if !matchRange(n.StoreID, storeID, n.CreatedAt, from, to) {
			continue
		}
		notes = append(notes, cloneNote(n))
	}
	slices.SortFunc(notes, func(a, b domain.Note) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return notes, nil
}

func (s *Store) CreateShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.StoreID) == "" || strings.TrimSpace(shift.SellerID) == "" {
		return nil, store.ErrValidation
	}
	if shift.OpeningCents < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := shiftMapKey(shift.StoreID, shift.SellerID)
	if _, exists := s.openShiftByKey[key]; exists {
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

	s.shiftsByID[shift.ID] = shift
	s.openShiftByKey[key] = shift.ID
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetShift(_ context.Context, shiftID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, exists := s.shiftsByID[shiftID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetOpenShift(_ context.Context, storeID string, sellerID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := shiftMapKey(storeID, sellerID)
	shiftID, exists := s.openShiftByKey[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	shift, exists := s.shiftsByID[shiftID]
	if !exists || shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrNotFound
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) CloseShift(_ context.Context, shiftID string, salesTotalCents int64, closingTotalCents int64, closedAt time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, exists := s.shiftsByID[shiftID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, store.ErrValidation
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusClosed
	shift.SalesTotalCents = salesTotalCents
	shift.ClosingTotalCents = closingTotalCents
	shift.ClosedAt = &closedAt

	delete(s.openShiftByKey, shiftMapKey(shift.StoreID, shift.SellerID))
	s.shiftsByID[shiftID] = shift
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = ident.NewID("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		if !matchRange(entry.StoreID, storeID, entry.CreatedAt, from, to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrValidation
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "seller"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

// matchRange filters by scope and time window. An empty storeID matches every
// scope; zero bounds leave that side of the window open. The upper bound is
// exclusive.
func matchRange(recordStore string, storeID string, at time.Time, from time.Time, to time.Time) bool {
	if storeID != "" && recordStore != storeID {
		return false
	}
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

func shiftMapKey(storeID string, sellerID string) string {
	return storeID + "::" + sellerID
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dupItems := make([]domain.SaleLine, len(src.Items))
	copy(dupItems, src.Items)
	dup.Items = dupItems
	dupPayments := make([]domain.Payment, len(src.Payments))
	copy(dupPayments, src.Payments)
	dup.Payments = dupPayments
	return &dup
}

func cloneNote(src domain.Note) domain.Note {
	dup := src
	items := make([]domain.ReturnedItem, len(src.ReturnedItems))
	copy(items, src.ReturnedItems)
	dup.ReturnedItems = items
	return dup
}
