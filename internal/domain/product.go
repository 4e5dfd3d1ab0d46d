package domain

import "github.com/shopspring/decimal"

// Product is a sellable item with fixed, limited inventory.
type Product struct {
	ID         int64
	Name       string
	Price      decimal.Decimal
	StockTotal int
	StockSold  int
}

// AvailableStock returns stock_total - stock_sold - activeQty - pendingQty,
// floored at zero. The caller supplies the already-aggregated hold
// quantities; Product itself holds no reference to holds.
func (p Product) AvailableStock(activeQty, pendingQty int) int {
	available := p.StockTotal - p.StockSold - activeQty - pendingQty
	if available < 0 {
		return 0
	}
	return available
}
