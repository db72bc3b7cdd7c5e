package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"posledger/internal/domain"
	"posledger/internal/ident"
	"posledger/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	defaultStoreID string
}

func New(repo store.Repository, defaultStoreID string) *Service {
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}

	return &Service{
		repo:           repo,
		defaultStoreID: defaultStoreID,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if !ident.Classify(productID).IsCommitted() {
		return domain.Product{}, store.ErrValidation
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// GetProductByBarcode serves the scanner flow at the register.
func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

// RecordSale validates the cart against a stock snapshot, then hands the sale
// and its stock decrements to the store as a single write set. The snapshot
// check races with concurrent sales; the store does not re-guard, so two
// overlapping carts can drive stock negative. Intentional: availability over
// strict non-negativity, negative stock surfaces in reconciliation.
func (s *Service) RecordSale(ctx context.Context, req domain.RecordSaleRequest) (domain.Sale, error) {
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if req.SellerID == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			req.SellerID = actor.Username
		}
	}
	if strings.TrimSpace(req.SellerID) == "" {
		return domain.Sale{}, fmt.Errorf("%w: seller required", store.ErrValidation)
	}

	clientRef := ident.Classify(strings.TrimSpace(req.ClientID))
	if clientRef.String() == "" {
		clientRef = ident.Committed(domain.WalkInClient)
	}
	if !clientRef.IsCommitted() {
		return domain.Sale{}, fmt.Errorf("%w: client reference not committed", store.ErrValidation)
	}

	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: empty cart", store.ErrValidation)
	}
	if len(req.Payments) == 0 {
		return domain.Sale{}, fmt.Errorf("%w: payment required", store.ErrValidation)
	}

	// Duplicate cart lines collapse per product before any stock math.
	qtyByProduct := make(map[string]int, len(req.Items))
	order := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if !ident.Classify(item.ProductID).IsCommitted() {
			return domain.Sale{}, fmt.Errorf("%w: product reference %q not committed", store.ErrValidation, item.ProductID)
		}
		if item.Qty < 1 {
			return domain.Sale{}, fmt.Errorf("%w: qty must be positive", store.ErrValidation)
		}
		if _, seen := qtyByProduct[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		qtyByProduct[item.ProductID] += item.Qty
	}

	products, err := s.repo.GetProductsByIDs(ctx, order)
	if err != nil {
		return domain.Sale{}, err
	}

	lines := make([]domain.SaleLine, 0, len(order))
	deltas := make([]domain.StockDelta, 0, len(order))
	totalCents := int64(0)
	for _, productID := range order {
		product, exists := products[productID]
		if !exists || !product.Active {
			return domain.Sale{}, fmt.Errorf("%w: product %s unavailable", store.ErrValidation, productID)
		}
		qty := qtyByProduct[productID]
		if product.Stock < qty {
			return domain.Sale{}, &store.InsufficientStockError{
				ProductID: productID,
				Requested: qty,
				Available: product.Stock,
			}
		}
		lines = append(lines, domain.SaleLine{
			ProductID:      productID,
			Qty:            qty,
			UnitPriceCents: product.PriceCents,
			UnitCostCents:  product.CostCents,
		})
		deltas = append(deltas, domain.StockDelta{ProductID: productID, Qty: -qty})
		totalCents += product.PriceCents * int64(qty)
	}

	paymentsCents := int64(0)
	for _, p := range req.Payments {
		if !isSupportedPaymentMethod(p.Method) {
			return domain.Sale{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, p.Method)
		}
		if p.AmountCents < 1 {
			return domain.Sale{}, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
		}
		paymentsCents += p.AmountCents
	}
	if paymentsCents != totalCents {
		return domain.Sale{}, fmt.Errorf("%w: payments %d do not match total %d", store.ErrValidation, paymentsCents, totalCents)
	}

	sale := domain.Sale{
		ID:          ident.NewID("sale"),
		StoreID:     req.StoreID,
		SellerID:    req.SellerID,
		ClientID:    clientRef.String(),
		ReceiptType: req.ReceiptType,
		TotalCents:  totalCents,
		Items:       lines,
		Payments:    req.Payments,
		CreatedAt:   time.Now().UTC(),
	}

	created, err := s.repo.CreateSale(ctx, sale, deltas)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, req.StoreID, "sale_record", "sale", created.ID, fmt.Sprintf("total=%d,items=%d", created.TotalCents, len(created.Items)))
	return *created, nil
}

// ReverseSale deletes the sale and restores the decremented stock in one
// write set. Not idempotent: a second reversal finds nothing and fails.
func (s *Service) ReverseSale(ctx context.Context, saleID string) (domain.Sale, error) {
	if !ident.Classify(saleID).IsCommitted() {
		return domain.Sale{}, fmt.Errorf("%w: sale reference not committed", store.ErrValidation)
	}

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}

	deltas := make([]domain.StockDelta, 0, len(sale.Items))
	for _, item := range sale.Items {
		deltas = append(deltas, domain.StockDelta{ProductID: item.ProductID, Qty: item.Qty})
	}

	deleted, err := s.repo.DeleteSale(ctx, saleID, deltas)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, deleted.StoreID, "sale_reverse", "sale", deleted.ID, fmt.Sprintf("total=%d", deleted.TotalCents))
	return *deleted, nil
}

// RecordCreditNote writes the note and, when returned items are listed,
// restores their stock in the same write set.
func (s *Service) RecordCreditNote(ctx context.Context, req domain.NoteRequest) (domain.Note, error) {
	req.Type = domain.NoteTypeCredit
	note, deltas, err := s.buildNote(ctx, req)
	if err != nil {
		return domain.Note{}, err
	}

	created, err := s.repo.CreateNote(ctx, note, deltas)
	if err != nil {
		return domain.Note{}, err
	}

	s.logAudit(ctx, created.StoreID, "note_credit", "note", created.ID, fmt.Sprintf("amount=%d,returned=%d", created.AmountCents, len(created.ReturnedItems)))
	return *created, nil
}

// RecordDebitNote writes the note only; debit notes never carry returned
// items and never touch stock.
func (s *Service) RecordDebitNote(ctx context.Context, req domain.NoteRequest) (domain.Note, error) {
	req.Type = domain.NoteTypeDebit
	if len(req.ReturnedItems) > 0 {
		return domain.Note{}, fmt.Errorf("%w: debit notes cannot carry returned items", store.ErrValidation)
	}
	note, _, err := s.buildNote(ctx, req)
	if err != nil {
		return domain.Note{}, err
	}

	created, err := s.repo.CreateNote(ctx, note, nil)
	if err != nil {
		return domain.Note{}, err
	}

	s.logAudit(ctx, created.StoreID, "note_debit", "note", created.ID, fmt.Sprintf("amount=%d", created.AmountCents))
	return *created, nil
}

func (s *Service) buildNote(ctx context.Context, req domain.NoteRequest) (domain.Note, []domain.StockDelta, error) {
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if req.AmountCents < 1 {
		return domain.Note{}, nil, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}

	clientRef := ident.Classify(strings.TrimSpace(req.ClientID))
	if clientRef.String() == "" {
		clientRef = ident.Committed(domain.WalkInClient)
	}
	if !clientRef.IsCommitted() {
		return domain.Note{}, nil, fmt.Errorf("%w: client reference not committed", store.ErrValidation)
	}

	saleID := strings.TrimSpace(req.SaleID)
	if saleID != "" {
		if !ident.Classify(saleID).IsCommitted() {
			return domain.Note{}, nil, fmt.Errorf("%w: sale reference not committed", store.ErrValidation)
		}
	}

	var deltas []domain.StockDelta
	if len(req.ReturnedItems) > 0 {
		productIDs := make([]string, 0, len(req.ReturnedItems))
		for _, item := range req.ReturnedItems {
			if !ident.Classify(item.ProductID).IsCommitted() {
				return domain.Note{}, nil, fmt.Errorf("%w: product reference %q not committed", store.ErrValidation, item.ProductID)
			}
			if item.Qty < 1 {
				return domain.Note{}, nil, fmt.Errorf("%w: returned qty must be positive", store.ErrValidation)
			}
			productIDs = append(productIDs, item.ProductID)
		}
		products, err := s.repo.GetProductsByIDs(ctx, productIDs)
		if err != nil {
			return domain.Note{}, nil, err
		}
		deltas = make([]domain.StockDelta, 0, len(req.ReturnedItems))
		for _, item := range req.ReturnedItems {
			if _, exists := products[item.ProductID]; !exists {
				return domain.Note{}, nil, fmt.Errorf("%w: product %s unavailable", store.ErrValidation, item.ProductID)
			}
			deltas = append(deltas, domain.StockDelta{ProductID: item.ProductID, Qty: item.Qty})
		}
	}

	note := domain.Note{
		ID:            ident.NewID("note"),
		StoreID:       req.StoreID,
		Type:          req.Type,
		SaleID:        saleID,
		ClientID:      clientRef.String(),
		Reason:        strings.TrimSpace(req.Reason),
		AmountCents:   req.AmountCents,
		ReturnedItems: req.ReturnedItems,
		CreatedAt:     time.Now().UTC(),
	}
	return note, deltas, nil
}

// DeleteNote removes the note record. A deleted credit note does not take
// back the stock it restored; reconciliation reads may disagree with shelf
// reality until a manual adjustment.
func (s *Service) DeleteNote(ctx context.Context, noteID string) (domain.Note, error) {
	if !ident.Classify(noteID).IsCommitted() {
		return domain.Note{}, fmt.Errorf("%w: note reference not committed", store.ErrValidation)
	}
	deleted, err := s.repo.DeleteNote(ctx, noteID)
	if err != nil {
		return domain.Note{}, err
	}
	s.logAudit(ctx, deleted.StoreID, "note_delete", "note", deleted.ID, fmt.Sprintf("type=%s,amount=%d", deleted.Type, deleted.AmountCents))
	return *deleted, nil
}

func (s *Service) RecordManualIncome(ctx context.Context, storeID string, description string, amountCents int64) (domain.ManualIncome, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	description = strings.TrimSpace(description)
	if description == "" || amountCents < 1 {
		return domain.ManualIncome{}, fmt.Errorf("%w: description and positive amount required", store.ErrValidation)
	}

	created, err := s.repo.CreateManualIncome(ctx, domain.ManualIncome{
		ID:          ident.NewID("inc"),
		StoreID:     storeID,
		Description: description,
		AmountCents: amountCents,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.ManualIncome{}, err
	}

	s.logAudit(ctx, storeID, "income_record", "income", created.ID, fmt.Sprintf("amount=%d", created.AmountCents))
	return *created, nil
}

func (s *Service) DeleteManualIncome(ctx context.Context, incomeID string) (domain.ManualIncome, error) {
	if !ident.Classify(incomeID).IsCommitted() {
		return domain.ManualIncome{}, fmt.Errorf("%w: income reference not committed", store.ErrValidation)
	}
	deleted, err := s.repo.DeleteManualIncome(ctx, incomeID)
	if err != nil {
		return domain.ManualIncome{}, err
	}
	s.logAudit(ctx, deleted.StoreID, "income_delete", "income", deleted.ID, fmt.Sprintf("amount=%d", deleted.AmountCents))
	return *deleted, nil
}

func (s *Service) RecordExpense(ctx context.Context, storeID string, description string, amountCents int64) (domain.Expense, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	description = strings.TrimSpace(description)
	if description == "" || amountCents < 1 {
		return domain.Expense{}, fmt.Errorf("%w: description and positive amount required", store.ErrValidation)
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:          ident.NewID("exp"),
		StoreID:     storeID,
		Description: description,
		AmountCents: amountCents,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, storeID, "expense_record", "expense", created.ID, fmt.Sprintf("amount=%d", created.AmountCents))
	return *created, nil
}

func (s *Service) DeleteExpense(ctx context.Context, expenseID string) (domain.Expense, error) {
	if !ident.Classify(expenseID).IsCommitted() {
		return domain.Expense{}, fmt.Errorf("%w: expense reference not committed", store.ErrValidation)
	}
	deleted, err := s.repo.DeleteExpense(ctx, expenseID)
	if err != nil {
		return domain.Expense{}, err
	}
	s.logAudit(ctx, deleted.StoreID, "expense_delete", "expense", deleted.ID, fmt.Sprintf("amount=%d", deleted.AmountCents))
	return *deleted, nil
}

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.Shift, error) {
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if req.SellerID == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			req.SellerID = actor.Username
		}
	}
	if strings.TrimSpace(req.SellerID) == "" {
		return domain.Shift{}, fmt.Errorf("%w: seller required", store.ErrValidation)
	}
	if req.OpeningCents < 0 {
		return domain.Shift{}, fmt.Errorf("%w: opening balance cannot be negative", store.ErrValidation)
	}

	created, err := s.repo.CreateShift(ctx, domain.Shift{
		ID:           ident.NewID("shift"),
		StoreID:      req.StoreID,
		SellerID:     req.SellerID,
		OpeningCents: req.OpeningCents,
		OpenedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.Shift{}, err
	}

	s.logAudit(ctx, req.StoreID, "shift_open", "shift", created.ID, fmt.Sprintf("opening=%d", created.OpeningCents))
	return *created, nil
}

// CloseShift aggregates the session window [OpenedAt, now): the seller's
// sales total and the expected drawer balance, opening + cash sales +
// manual incomes - expenses. Incomes and expenses are store-scoped; they are
// drawer movements regardless of who keyed them in.
func (s *Service) CloseShift(ctx context.Context, shiftID string) (domain.ShiftCloseResult, error) {
	if !ident.Classify(shiftID).IsCommitted() {
		return domain.ShiftCloseResult{}, fmt.Errorf("%w: shift reference not committed", store.ErrValidation)
	}

	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return domain.ShiftCloseResult{}, err
	}
	if shift.Status != domain.ShiftStatusOpen {
		return domain.ShiftCloseResult{}, fmt.Errorf("%w: shift already closed", store.ErrValidation)
	}

	now := time.Now().UTC()

	sales, err := s.repo.ListSales(ctx, shift.StoreID, shift.OpenedAt, now)
	if err != nil {
		return domain.ShiftCloseResult{}, err
	}
	salesTotal := int64(0)
	cashTotal := int64(0)
	for _, sale := range sales {
		if sale.SellerID != shift.SellerID {
			continue
		}
		salesTotal += sale.TotalCents
		for _, p := range sale.Payments {
			if p.Method == domain.PaymentMethodCash {
				cashTotal += p.AmountCents
			}
		}
	}

	incomes, err := s.repo.ListManualIncomes(ctx, shift.StoreID, shift.OpenedAt, now)
	if err != nil {
		return domain.ShiftCloseResult{}, err
	}
	incomeTotal := int64(0)
	for _, inc := range incomes {
		incomeTotal += inc.AmountCents
	}

	expenses, err := s.repo.ListExpenses(ctx, shift.StoreID, shift.OpenedAt, now)
	if err != nil {
		return domain.ShiftCloseResult{}, err
	}
	expenseTotal := int64(0)
	for _, exp := range expenses {
		expenseTotal += exp.AmountCents
	}

	expectedClosing := shift.OpeningCents + cashTotal + incomeTotal - expenseTotal

	closed, err := s.repo.CloseShift(ctx, shiftID, salesTotal, expectedClosing, now)
	if err != nil {
		return domain.ShiftCloseResult{}, err
	}

	s.logAudit(ctx, closed.StoreID, "shift_close", "shift", closed.ID, fmt.Sprintf("sales=%d,closing=%d", salesTotal, expectedClosing))
	return domain.ShiftCloseResult{
		Shift:           *closed,
		SalesTotalCents: salesTotal,
		FinalTotalCents: expectedClosing,
	}, nil
}

func (s *Service) ActiveShift(ctx context.Context, storeID string, sellerID string) (domain.Shift, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if sellerID == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			sellerID = actor.Username
		}
	}
	shift, err := s.repo.GetOpenShift(ctx, storeID, sellerID)
	if err != nil {
		return domain.Shift{}, err
	}
	return *shift, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}

	var from, to time.Time
	if date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid date", store.ErrValidation)
		}
		from = day.UTC()
		to = from.Add(24 * time.Hour)
	}

	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            ident.NewID("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentMethodCash, "card", "transfer", "qris":
		return true
	}
	return false
}
