package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"posledger/internal/domain"
	"posledger/internal/store"
	"posledger/internal/store/memory"
)

const testDay = "2026-03-15"

func testDayAt(hour int) time.Time {
	return time.Date(2026, time.March, 15, hour, 0, 0, 0, time.UTC)
}

func seedLedger(t *testing.T, repo *memory.Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := repo.CreateProduct(ctx, domain.Product{
		ID: "prod-kopi", Name: "Kopi Sachet", PriceCents: 1500, Stock: 100,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := repo.CreateProduct(ctx, domain.Product{
		ID: "prod-roti", Name: "Roti Tawar", PriceCents: 500, Stock: 100,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	if _, err := repo.CreateSale(ctx, domain.Sale{
		ID:          "sale-1",
		StoreID:     "main-store",
		SellerID:    "seller",
		ClientID:    domain.WalkInClient,
		TotalCents:  1500,
		Items:       []domain.SaleLine{{ProductID: "prod-kopi", Qty: 1, UnitPriceCents: 1500}},
		Payments:    []domain.Payment{{Method: "cash", AmountCents: 1000}, {Method: "card", AmountCents: 500}},
		CreatedAt:   testDayAt(9),
	}, nil); err != nil {
		t.Fatalf("seed sale: %v", err)
	}
	if _, err := repo.CreateSale(ctx, domain.Sale{
		ID:          "sale-2",
		StoreID:     "main-store",
		SellerID:    "admin",
		ClientID:    "client-7",
		TotalCents:  1000,
		Items:       []domain.SaleLine{{ProductID: "prod-roti", Qty: 2, UnitPriceCents: 500}},
		Payments:    []domain.Payment{{Method: "qris", AmountCents: 1000}},
		CreatedAt:   testDayAt(14),
	}, nil); err != nil {
		t.Fatalf("seed sale: %v", err)
	}

	if _, err := repo.CreateManualIncome(ctx, domain.ManualIncome{
		ID: "inc-1", StoreID: "main-store", Description: "bottle deposit refund",
		AmountCents: 200, CreatedAt: testDayAt(10),
	}); err != nil {
		t.Fatalf("seed income: %v", err)
	}
	if _, err := repo.CreateExpense(ctx, domain.Expense{
		ID: "exp-1", StoreID: "main-store", Description: "courier",
		AmountCents: 300, CreatedAt: testDayAt(11),
	}); err != nil {
		t.Fatalf("seed expense: %v", err)
	}
}

func TestExpectedCashProjectsDrawerBalance(t *testing.T) {
	repo := memory.New()
	seedLedger(t, repo)
	engine := NewEngine(repo, nil, 0)

	projection, err := engine.ExpectedCash(context.Background(), testDay, "main-store")
	if err != nil {
		t.Fatalf("expected cash failed: %v", err)
	}
	// Only the cash leg of the split payment counts: 1000 + 200 - 300.
	if projection.CashSalesCents != 1000 {
		t.Fatalf("expected cash sales 1000, got %d", projection.CashSalesCents)
	}
	if projection.ExpectedCents != 900 {
		t.Fatalf("expected drawer projection 900, got %d", projection.ExpectedCents)
	}
}

func TestPaymentBreakdownSplitsByMethod(t *testing.T) {
	repo := memory.New()
	seedLedger(t, repo)
	engine := NewEngine(repo, nil, 0)

	breakdown, err := engine.PaymentBreakdown(context.Background(), testDay, "main-store")
	if err != nil {
		t.Fatalf("payment breakdown failed: %v", err)
	}
	want := map[string]int64{"cash": 1000, "card": 500, "qris": 1000}
	for method, amount := range want {
		if breakdown.ByMethod[method] != amount {
			t.Fatalf("expected %s total %d, got %d", method, amount, breakdown.ByMethod[method])
		}
	}
}

func TestDailyMovementsMergesAndSignsRows(t *testing.T) {
	repo := memory.New()
	seedLedger(t, repo)
	engine := NewEngine(repo, nil, 0)

	report, err := engine.DailyMovements(context.Background(), testDay, "main-store", "", domain.MovementSort{})
	if err != nil {
		t.Fatalf("daily movements failed: %v", err)
	}
	if len(report.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(report.Rows))
	}
	// Default order is newest first.
	if report.Rows[0].RecordID != "sale-2" {
		t.Fatalf("expected newest row first, got %s", report.Rows[0].RecordID)
	}
	for _, row := range report.Rows {
		if row.Kind == domain.MovementKindExpense && row.DisplayCents != -300 {
			t.Fatalf("expected expense rendered as -300, got %d", row.DisplayCents)
		}
		if row.RecordID == "sale-1" && row.Description != "sale to walk-in" {
			t.Fatalf("unexpected sale description %q", row.Description)
		}
	}
}

func TestDailyMovementsFilterAndSort(t *testing.T) {
	repo := memory.New()
	seedLedger(t, repo)
	engine := NewEngine(repo, nil, 0)
	ctx := context.Background()

	filtered, err := engine.DailyMovements(ctx, testDay, "main-store", "COURIER", domain.MovementSort{})
	if err != nil {
		t.Fatalf("filtered movements failed: %v", err)
	}
	if len(filtered.Rows) != 1 || filtered.Rows[0].RecordID != "exp-1" {
		t.Fatalf("expected filter to keep just the courier expense, got %+v", filtered.Rows)
	}

	byAmount, err := engine.DailyMovements(ctx, testDay, "main-store", "", domain.MovementSort{Column: "amount", Ascending: true})
	if err != nil {
		t.Fatalf("sorted movements failed: %v", err)
	}
	for i := 1; i < len(byAmount.Rows); i++ {
		if byAmount.Rows[i-1].DisplayCents > byAmount.Rows[i].DisplayCents {
			t.Fatalf("rows not sorted ascending by amount: %+v", byAmount.Rows)
		}
	}
	if byAmount.Rows[0].DisplayCents != -300 {
		t.Fatalf("expected the expense to sort first, got %d", byAmount.Rows[0].DisplayCents)
	}
}

func TestDailyMovementsRejectsBadDate(t *testing.T) {
	engine := NewEngine(memory.New(), nil, 0)
	_, err := engine.DailyMovements(context.Background(), "15-03-2026", "", "", domain.MovementSort{})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for bad date, got %v", err)
	}
}

// timestampless lists simulate records persisted before timestamps were
// recorded; the report counts them instead of inventing an order for them.
type timestamplessRepo struct {
	store.Repository
}

func (r timestamplessRepo) ListSales(context.Context, string, time.Time, time.Time) ([]domain.Sale, error) {
	return []domain.Sale{
		{ID: "sale-old", StoreID: "main-store", TotalCents: 500},
		{ID: "sale-new", StoreID: "main-store", TotalCents: 700, CreatedAt: testDayAt(8)},
	}, nil
}

func (r timestamplessRepo) ListManualIncomes(context.Context, string, time.Time, time.Time) ([]domain.ManualIncome, error) {
	return []domain.ManualIncome{{ID: "inc-old", AmountCents: 50}}, nil
}

func (r timestamplessRepo) ListExpenses(context.Context, string, time.Time, time.Time) ([]domain.Expense, error) {
	return nil, nil
}

func TestDailyMovementsCountsSkippedRecords(t *testing.T) {
	engine := NewEngine(timestamplessRepo{}, nil, 0)

	report, err := engine.DailyMovements(context.Background(), testDay, "main-store", "", domain.MovementSort{})
	if err != nil {
		t.Fatalf("daily movements failed: %v", err)
	}
	if report.SkippedRecords != 2 {
		t.Fatalf("expected 2 skipped records, got %d", report.SkippedRecords)
	}
	if len(report.Rows) != 1 || report.Rows[0].RecordID != "sale-new" {
		t.Fatalf("expected only the timestamped sale, got %+v", report.Rows)
	}
}

func TestTopProductsRanksByQuantity(t *testing.T) {
	repo := memory.New()
	seedLedger(t, repo)
	engine := NewEngine(repo, nil, 0)

	top, err := engine.TopProducts(context.Background(), 3, 2026, "main-store", 0)
	if err != nil {
		t.Fatalf("top products failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 ranked products, got %d", len(top))
	}
	if top[0].ProductID != "prod-roti" || top[0].Qty != 2 {
		t.Fatalf("expected prod-roti qty 2 first, got %+v", top[0])
	}
	if top[0].Name != "Roti Tawar" {
		t.Fatalf("expected resolved product name, got %q", top[0].Name)
	}
	if top[1].RevenueCents != 1500 {
		t.Fatalf("expected prod-kopi revenue 1500, got %d", top[1].RevenueCents)
	}
}

func TestSellerRankingOrdersByRevenue(t *testing.T) {
	repo := memory.New()
	seedLedger(t, repo)
	engine := NewEngine(repo, nil, 0)

	sellers, err := engine.SellerRanking(context.Background(), 3, 2026, "main-store")
	if err != nil {
		t.Fatalf("seller ranking failed: %v", err)
	}
	if len(sellers) != 2 {
		t.Fatalf("expected 2 sellers, got %d", len(sellers))
	}
	if sellers[0].SellerID != "seller" || sellers[0].TotalCents != 1500 || sellers[0].SaleCount != 1 {
		t.Fatalf("unexpected top seller %+v", sellers[0])
	}
}

func TestHeatmapBucketsByWeekdayAndHour(t *testing.T) {
	repo := memory.New()
	seedLedger(t, repo)
	engine := NewEngine(repo, nil, 0)

	cells, err := engine.Heatmap(context.Background(), 3, 2026, "main-store")
	if err != nil {
		t.Fatalf("heatmap failed: %v", err)
	}
	if len(cells) != 2 {
		t.Fatalf("expected 2 heatmap cells, got %d", len(cells))
	}
	wantDay := int(testDayAt(9).Weekday())
	for _, cell := range cells {
		if cell.DayOfWeek != wantDay {
			t.Fatalf("expected day %d, got %d", wantDay, cell.DayOfWeek)
		}
		if cell.Hour != 9 && cell.Hour != 14 {
			t.Fatalf("unexpected hour %d", cell.Hour)
		}
		if cell.Count != 1 {
			t.Fatalf("expected count 1, got %d", cell.Count)
		}
	}
}

type recordingCache struct {
	stored map[string]*domain.MonthlyRollup
	gets   int
	sets   int
}

func (c *recordingCache) Get(_ context.Context, key string) (*domain.MonthlyRollup, bool, error) {
	c.gets++
	rollup, ok := c.stored[key]
	return rollup, ok, nil
}

func (c *recordingCache) Set(_ context.Context, key string, value *domain.MonthlyRollup, _ time.Duration) error {
	c.sets++
	c.stored[key] = value
	return nil
}

func TestMonthlyRollupUsesCacheAside(t *testing.T) {
	repo := memory.New()
	seedLedger(t, repo)
	cacheStore := &recordingCache{stored: map[string]*domain.MonthlyRollup{}}
	engine := NewEngine(repo, cacheStore, time.Minute)
	ctx := context.Background()

	if _, err := engine.TopProducts(ctx, 3, 2026, "main-store", 5); err != nil {
		t.Fatalf("first rollup failed: %v", err)
	}
	if cacheStore.sets != 1 {
		t.Fatalf("expected one cache fill, got %d", cacheStore.sets)
	}

	if _, err := engine.SellerRanking(ctx, 3, 2026, "main-store"); err != nil {
		t.Fatalf("second rollup failed: %v", err)
	}
	if cacheStore.sets != 1 {
		t.Fatalf("expected cache hit on second read, got %d fills", cacheStore.sets)
	}
	if cacheStore.gets != 2 {
		t.Fatalf("expected two cache lookups, got %d", cacheStore.gets)
	}
}
