package service

import "github.com/shopspring/decimal"

// money renders an amount with the locale's grouping, e.g. 1,250.00.
func (c *core) money(d decimal.Decimal) string {
	return c.printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
}
