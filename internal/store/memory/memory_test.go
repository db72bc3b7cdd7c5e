package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"posledger/internal/domain"
	"posledger/internal/store"
)

func seedOne(t *testing.T, s *Store, id string, stock int) {
	t.Helper()
	_, err := s.CreateProduct(context.Background(), domain.Product{
		ID: id, Name: "Produk " + id, PriceCents: 1000, Stock: stock,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func TestCreateSaleAppliesDeltasAtomically(t *testing.T) {
	s := New()
	seedOne(t, s, "prod-a", 10)
	ctx := context.Background()

	sale := domain.Sale{
		StoreID:  "main-store",
		SellerID: "seller",
		Items:    []domain.SaleLine{{ProductID: "prod-a", Qty: 2, UnitPriceCents: 1000}},
	}
	deltas := []domain.StockDelta{
		{ProductID: "prod-a", Qty: -2},
		{ProductID: "prod-missing", Qty: -1},
	}
	if _, err := s.CreateSale(ctx, sale, deltas); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown product to fail the write, got %v", err)
	}

	// The failed composite write must leave no trace: no sale, no partial
	// stock movement.
	product, err := s.GetProduct(ctx, "prod-a")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 10 {
		t.Fatalf("expected stock untouched at 10, got %d", product.Stock)
	}
	sales, err := s.ListSales(ctx, "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sale recorded, got %d", len(sales))
	}
}

func TestCreateSaleAllowsNegativeStock(t *testing.T) {
	s := New()
	seedOne(t, s, "prod-a", 1)
	ctx := context.Background()

	sale := domain.Sale{
		StoreID:  "main-store",
		SellerID: "seller",
		Items:    []domain.SaleLine{{ProductID: "prod-a", Qty: 3, UnitPriceCents: 1000}},
	}
	if _, err := s.CreateSale(ctx, sale, []domain.StockDelta{{ProductID: "prod-a", Qty: -3}}); err != nil {
		t.Fatalf("expected write set to apply unconditionally, got %v", err)
	}
	product, err := s.GetProduct(ctx, "prod-a")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != -2 {
		t.Fatalf("expected stock -2, got %d", product.Stock)
	}
}

func TestDeleteSaleRestoresStockAndRemovesRecord(t *testing.T) {
	s := New()
	seedOne(t, s, "prod-a", 5)
	ctx := context.Background()

	created, err := s.CreateSale(ctx, domain.Sale{
		StoreID:  "main-store",
		SellerID: "seller",
		Items:    []domain.SaleLine{{ProductID: "prod-a", Qty: 2, UnitPriceCents: 1000}},
	}, []domain.StockDelta{{ProductID: "prod-a", Qty: -2}})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	deleted, err := s.DeleteSale(ctx, created.ID, []domain.StockDelta{{ProductID: "prod-a", Qty: 2}})
	if err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if deleted.ID != created.ID {
		t.Fatalf("expected deleted sale %s, got %s", created.ID, deleted.ID)
	}
	product, _ := s.GetProduct(ctx, "prod-a")
	if product.Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", product.Stock)
	}
	if _, err := s.GetSale(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected sale gone, got %v", err)
	}
}

func TestCreateNoteRejectsUnknownType(t *testing.T) {
	s := New()
	_, err := s.CreateNote(context.Background(), domain.Note{
		StoreID: "main-store", Type: "refund", AmountCents: 100,
	}, nil)
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected unknown note type rejection, got %v", err)
	}
}

func TestDeleteNoteLeavesStockAlone(t *testing.T) {
	s := New()
	seedOne(t, s, "prod-a", 4)
	ctx := context.Background()

	note, err := s.CreateNote(ctx, domain.Note{
		StoreID:       "main-store",
		Type:          domain.NoteTypeCredit,
		Reason:        "damaged",
		AmountCents:   1000,
		ReturnedItems: []domain.ReturnedItem{{ProductID: "prod-a", Qty: 1}},
	}, []domain.StockDelta{{ProductID: "prod-a", Qty: 1}})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	product, _ := s.GetProduct(ctx, "prod-a")
	if product.Stock != 5 {
		t.Fatalf("expected stock 5 after credit note, got %d", product.Stock)
	}

	if _, err := s.DeleteNote(ctx, note.ID); err != nil {
		t.Fatalf("delete note: %v", err)
	}
	product, _ = s.GetProduct(ctx, "prod-a")
	if product.Stock != 5 {
		t.Fatalf("expected stock still 5 after note deletion, got %d", product.Stock)
	}
}

func TestSingleOpenShiftKeyedByStoreAndSeller(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateShift(ctx, domain.Shift{
		StoreID: "main-store", SellerID: "seller", OpeningCents: 1000,
		Status: domain.ShiftStatusOpen, OpenedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}

	_, err = s.CreateShift(ctx, domain.Shift{
		StoreID: "main-store", SellerID: "seller", OpeningCents: 0,
		Status: domain.ShiftStatusOpen, OpenedAt: time.Now().UTC(),
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected duplicate open shift rejection, got %v", err)
	}

	// Same seller, different store is a separate drawer.
	if _, err := s.CreateShift(ctx, domain.Shift{
		StoreID: "branch-2", SellerID: "seller", OpeningCents: 0,
		Status: domain.ShiftStatusOpen, OpenedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("expected shift in second store to open, got %v", err)
	}

	closedAt := time.Now().UTC()
	closed, err := s.CloseShift(ctx, first.ID, 2500, 3500, closedAt)
	if err != nil {
		t.Fatalf("close shift: %v", err)
	}
	if closed.Status != domain.ShiftStatusClosed || closed.ClosedAt == nil {
		t.Fatalf("expected closed shift with timestamp, got %+v", closed)
	}
	if _, err := s.GetOpenShift(ctx, "main-store", "seller"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected open slot freed, got %v", err)
	}

	// A fresh shift may open once the previous one is closed.
	if _, err := s.CreateShift(ctx, domain.Shift{
		StoreID: "main-store", SellerID: "seller", OpeningCents: 3500,
		Status: domain.ShiftStatusOpen, OpenedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("expected reopened shift, got %v", err)
	}
}

func TestCloseShiftTwiceFails(t *testing.T) {
	s := New()
	ctx := context.Background()

	shift, err := s.CreateShift(ctx, domain.Shift{
		StoreID: "main-store", SellerID: "seller",
		Status: domain.ShiftStatusOpen, OpenedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	if _, err := s.CloseShift(ctx, shift.ID, 0, 0, time.Now().UTC()); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if _, err := s.CloseShift(ctx, shift.ID, 0, 0, time.Now().UTC()); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected second close to fail, got %v", err)
	}
}

func TestListSalesRangeIsHalfOpen(t *testing.T) {
	s := New()
	seedOne(t, s, "prod-a", 100)
	ctx := context.Background()

	dayStart := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	nextDay := dayStart.AddDate(0, 0, 1)

	for i, at := range []time.Time{dayStart, nextDay.Add(-time.Nanosecond), nextDay} {
		if _, err := s.CreateSale(ctx, domain.Sale{
			ID:        "sale-" + string(rune('a'+i)),
			StoreID:   "main-store",
			SellerID:  "seller",
			Items:     []domain.SaleLine{{ProductID: "prod-a", Qty: 1, UnitPriceCents: 1000}},
			CreatedAt: at,
		}, nil); err != nil {
			t.Fatalf("create sale %d: %v", i, err)
		}
	}

	sales, err := s.ListSales(ctx, "main-store", dayStart, nextDay)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 sales inside [start, next), got %d", len(sales))
	}
	for _, sale := range sales {
		if sale.ID == "sale-c" {
			t.Fatalf("upper bound must be exclusive")
		}
	}
}

func TestListsReturnDefensiveCopies(t *testing.T) {
	s := New()
	seedOne(t, s, "prod-a", 9)
	ctx := context.Background()

	created, err := s.CreateSale(ctx, domain.Sale{
		StoreID:  "main-store",
		SellerID: "seller",
		Items:    []domain.SaleLine{{ProductID: "prod-a", Qty: 1, UnitPriceCents: 1000}},
	}, nil)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	created.Items[0].Qty = 99
	stored, err := s.GetSale(ctx, created.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if stored.Items[0].Qty != 1 {
		t.Fatalf("caller mutation leaked into the store: qty %d", stored.Items[0].Qty)
	}
}
