// Package report builds the reconciliation views: merged movement ledgers,
// payment breakdowns, expected-cash projections and month-scoped rankings.
// Everything is computed from committed records fetched through the
// repository; nothing here mutates state.
package report

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"posledger/internal/cache"
	"posledger/internal/domain"
	"posledger/internal/store"
)

type Engine struct {
	repo     store.Repository
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(repo store.Repository, cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Engine{
		repo:     repo,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// DailyMovements merges sales, manual incomes and expenses for one calendar
// day into a single signed ledger view.
func (e *Engine) DailyMovements(ctx context.Context, date string, storeID string, filter string, sortBy domain.MovementSort) (domain.MovementReport, error) {
	from, to, err := dayBounds(date)
	if err != nil {
		return domain.MovementReport{}, err
	}
	return e.movements(ctx, storeID, from, to, filter, sortBy)
}

// MonthlyMovements is the same merge over a calendar month.
func (e *Engine) MonthlyMovements(ctx context.Context, month int, year int, storeID string, filter string, sortBy domain.MovementSort) (domain.MovementReport, error) {
	from, to, err := monthBounds(month, year)
	if err != nil {
		return domain.MovementReport{}, err
	}
	return e.movements(ctx, storeID, from, to, filter, sortBy)
}

func (e *Engine) movements(ctx context.Context, storeID string, from time.Time, to time.Time, filter string, sortBy domain.MovementSort) (domain.MovementReport, error) {
	sales, err := e.repo.ListSales(ctx, storeID, from, to)
	if err != nil {
		return domain.MovementReport{}, err
	}
	incomes, err := e.repo.ListManualIncomes(ctx, storeID, from, to)
	if err != nil {
		return domain.MovementReport{}, err
	}
	expenses, err := e.repo.ListExpenses(ctx, storeID, from, to)
	if err != nil {
		return domain.MovementReport{}, err
	}

	skipped := 0
	rows := make([]domain.MovementRow, 0, len(sales)+len(incomes)+len(expenses))
	for _, sale := range sales {
		if sale.CreatedAt.IsZero() {
			skipped++
			continue
		}
		rows = append(rows, domain.MovementRow{
			Kind:         domain.MovementKindSale,
			RecordID:     sale.ID,
			Description:  fmt.Sprintf("sale to %s", sale.ClientID),
			DisplayCents: sale.TotalCents,
			CreatedAt:    sale.CreatedAt,
		})
	}
	for _, inc := range incomes {
		if inc.CreatedAt.IsZero() {
			skipped++
			continue
		}
		rows = append(rows, domain.MovementRow{
			Kind:         domain.MovementKindIncome,
			RecordID:     inc.ID,
			Description:  inc.Description,
			DisplayCents: inc.AmountCents,
			CreatedAt:    inc.CreatedAt,
		})
	}
	for _, exp := range expenses {
		if exp.CreatedAt.IsZero() {
			skipped++
			continue
		}
		rows = append(rows, domain.MovementRow{
			Kind:         domain.MovementKindExpense,
			RecordID:     exp.ID,
			Description:  exp.Description,
			DisplayCents: -exp.AmountCents,
			CreatedAt:    exp.CreatedAt,
		})
	}

	if filter = strings.TrimSpace(strings.ToLower(filter)); filter != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if movementMatches(row, filter) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	sortMovements(rows, sortBy)

	return domain.MovementReport{Rows: rows, SkippedRecords: skipped}, nil
}

func movementMatches(row domain.MovementRow, filter string) bool {
	haystack := []string{
		strings.ToLower(row.Kind),
		strings.ToLower(row.RecordID),
		strings.ToLower(row.Description),
		strconv.FormatInt(row.DisplayCents, 10),
		strings.ToLower(row.CreatedAt.Format(time.RFC3339)),
	}
	for _, h := range haystack {
		if strings.Contains(h, filter) {
			return true
		}
	}
	return false
}

// sortMovements orders rows by the requested column; ties keep the incoming
// order. The zero sort is CreatedAt, newest first.
func sortMovements(rows []domain.MovementRow, sortBy domain.MovementSort) {
	column := sortBy.Column
	if column == "" {
		column = "created_at"
	}

	var less func(a, b domain.MovementRow) int
	switch column {
	case "amount":
		less = func(a, b domain.MovementRow) int { return cmpInt64(a.DisplayCents, b.DisplayCents) }
	case "description":
		less = func(a, b domain.MovementRow) int { return strings.Compare(a.Description, b.Description) }
	case "kind":
		less = func(a, b domain.MovementRow) int { return strings.Compare(a.Kind, b.Kind) }
	default:
		less = func(a, b domain.MovementRow) int {
			if a.CreatedAt.Equal(b.CreatedAt) {
				return 0
			}
			if a.CreatedAt.Before(b.CreatedAt) {
				return -1
			}
			return 1
		}
	}

	if sortBy.Ascending {
		slices.SortStableFunc(rows, less)
	} else {
		slices.SortStableFunc(rows, func(a, b domain.MovementRow) int { return -less(a, b) })
	}
}

func (e *Engine) PaymentBreakdown(ctx context.Context, date string, storeID string) (domain.PaymentBreakdown, error) {
	from, to, err := dayBounds(date)
	if err != nil {
		return domain.PaymentBreakdown{}, err
	}

	sales, err := e.repo.ListSales(ctx, storeID, from, to)
	if err != nil {
		return domain.PaymentBreakdown{}, err
	}

	byMethod := map[string]int64{}
	for _, sale := range sales {
		for _, p := range sale.Payments {
			byMethod[p.Method] += p.AmountCents
		}
	}

	return domain.PaymentBreakdown{Date: date, StoreID: storeID, ByMethod: byMethod}, nil
}

// ExpectedCash projects the drawer balance for a day: cash payments plus
// manual incomes minus expenses.
func (e *Engine) ExpectedCash(ctx context.Context, date string, storeID string) (domain.CashProjection, error) {
	from, to, err := dayBounds(date)
	if err != nil {
		return domain.CashProjection{}, err
	}

	sales, err := e.repo.ListSales(ctx, storeID, from, to)
	if err != nil {
		return domain.CashProjection{}, err
	}
	cashSales := int64(0)
	for _, sale := range sales {
		for _, p := range sale.Payments {
			if p.Method == domain.PaymentMethodCash {
				cashSales += p.AmountCents
			}
		}
	}

	incomes, err := e.repo.ListManualIncomes(ctx, storeID, from, to)
	if err != nil {
		return domain.CashProjection{}, err
	}
	incomeTotal := int64(0)
	for _, inc := range incomes {
		incomeTotal += inc.AmountCents
	}

	expenses, err := e.repo.ListExpenses(ctx, storeID, from, to)
	if err != nil {
		return domain.CashProjection{}, err
	}
	expenseTotal := int64(0)
	for _, exp := range expenses {
		expenseTotal += exp.AmountCents
	}

	return domain.CashProjection{
		Date:           date,
		StoreID:        storeID,
		CashSalesCents: cashSales,
		IncomeCents:    incomeTotal,
		ExpenseCents:   expenseTotal,
		ExpectedCents:  cashSales + incomeTotal - expenseTotal,
	}, nil
}

func (e *Engine) TopProducts(ctx context.Context, month int, year int, storeID string, n int) ([]domain.RankedProduct, error) {
	if n < 1 {
		n = 5
	}
	rollup, err := e.monthlyRollup(ctx, month, year, storeID)
	if err != nil {
		return nil, err
	}
	top := rollup.TopProducts
	if len(top) > n {
		top = top[:n]
	}
	return top, nil
}

func (e *Engine) SellerRanking(ctx context.Context, month int, year int, storeID string) ([]domain.SellerRank, error) {
	rollup, err := e.monthlyRollup(ctx, month, year, storeID)
	if err != nil {
		return nil, err
	}
	return rollup.Sellers, nil
}

func (e *Engine) Heatmap(ctx context.Context, month int, year int, storeID string) ([]domain.HeatmapCell, error) {
	rollup, err := e.monthlyRollup(ctx, month, year, storeID)
	if err != nil {
		return nil, err
	}
	return rollup.Heatmap, nil
}

// monthlyRollup computes the month-scoped rankings in one pass over the
// month's sales, behind a cache-aside lookup.
func (e *Engine) monthlyRollup(ctx context.Context, month int, year int, storeID string) (*domain.MonthlyRollup, error) {
	from, to, err := monthBounds(month, year)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("pos:report:rollup:%s:%04d-%02d", storeID, year, month)
	if cached, ok, cacheErr := e.cache.Get(ctx, cacheKey); cacheErr == nil && ok {
		return cached, nil
	}

	sales, err := e.repo.ListSales(ctx, storeID, from, to)
	if err != nil {
		return nil, err
	}

	type productAgg struct {
		qty     int
		revenue int64
	}
	byProduct := map[string]*productAgg{}
	type sellerAgg struct {
		total int64
		count int
	}
	bySeller := map[string]*sellerAgg{}
	heat := map[[2]int]int{}

	for _, sale := range sales {
		if sale.CreatedAt.IsZero() {
			continue
		}
		for _, item := range sale.Items {
			agg := byProduct[item.ProductID]
			if agg == nil {
				agg = &productAgg{}
				byProduct[item.ProductID] = agg
			}
			agg.qty += item.Qty
			agg.revenue += item.UnitPriceCents * int64(item.Qty)
		}
		seller := bySeller[sale.SellerID]
		if seller == nil {
			seller = &sellerAgg{}
			bySeller[sale.SellerID] = seller
		}
		seller.total += sale.TotalCents
		seller.count++

		at := sale.CreatedAt.UTC()
		heat[[2]int{int(at.Weekday()), at.Hour()}]++
	}

	productIDs := make([]string, 0, len(byProduct))
	for id := range byProduct {
		productIDs = append(productIDs, id)
	}
	names, err := e.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	topProducts := make([]domain.RankedProduct, 0, len(byProduct))
	for id, agg := range byProduct {
		ranked := domain.RankedProduct{ProductID: id, Qty: agg.qty, RevenueCents: agg.revenue}
		if product, exists := names[id]; exists {
			ranked.Name = product.Name
		}
		topProducts = append(topProducts, ranked)
	}
	slices.SortFunc(topProducts, func(a, b domain.RankedProduct) int {
		if a.Qty != b.Qty {
			return b.Qty - a.Qty
		}
		if a.RevenueCents != b.RevenueCents {
			return cmpInt64(b.RevenueCents, a.RevenueCents)
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})

	sellers := make([]domain.SellerRank, 0, len(bySeller))
	for id, agg := range bySeller {
		sellers = append(sellers, domain.SellerRank{SellerID: id, TotalCents: agg.total, SaleCount: agg.count})
	}
	slices.SortFunc(sellers, func(a, b domain.SellerRank) int {
		if a.TotalCents != b.TotalCents {
			return cmpInt64(b.TotalCents, a.TotalCents)
		}
		return strings.Compare(a.SellerID, b.SellerID)
	})

	heatmap := make([]domain.HeatmapCell, 0, len(heat))
	for key, count := range heat {
		heatmap = append(heatmap, domain.HeatmapCell{DayOfWeek: key[0], Hour: key[1], Count: count})
	}
	slices.SortFunc(heatmap, func(a, b domain.HeatmapCell) int {
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek - b.DayOfWeek
		}
		return a.Hour - b.Hour
	})

	rollup := &domain.MonthlyRollup{
		StoreID:     storeID,
		Month:       month,
		Year:        year,
		TopProducts: topProducts,
		Sellers:     sellers,
		Heatmap:     heatmap,
		GeneratedAt: time.Now().UTC(),
	}
	_ = e.cache.Set(ctx, cacheKey, rollup, e.cacheTTL)
	return rollup, nil
}

func dayBounds(date string) (time.Time, time.Time, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid date %q", store.ErrValidation, date)
	}
	from := day.UTC()
	return from, from.Add(24 * time.Hour), nil
}

func monthBounds(month int, year int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 || year < 2000 || year > 2200 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid month %d/%d", store.ErrValidation, month, year)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}

func cmpInt64(a int64, b int64) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
