package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DesignCharge is the outcome of closing a design timer.
type DesignCharge struct {
	Minutes       int             `json:"minutes"`        // length of the closed interval
	DesignMinutes int             `json:"design_minutes"` // billable minutes accumulated on the order
	DesignAmount  decimal.Decimal `json:"design_amount"`
	Billed        bool            `json:"billed"`
}

// billable reports whether design time on the order is charged.
func billable(order *entity.SalesOrder, rate *entity.BillingRate) bool {
	if order.BillingAuthorized {
		return true
	}
	return rate.AutoBilling && rate.RequiresAuthorization(order.DesignRevisions)
}

// closeDesignTimer closes the open design timer of a locked order, if there is one, and
// bills it. The caller saves the order header.
func (c *core) closeDesignTimer(ctx context.Context, r *repository.Repositories, order *entity.SalesOrder, rate *entity.BillingRate, eff *effects) (*entity.TimeLog, *DesignCharge, error) {
	log, err := r.TimeLog.FindOpen(ctx, entity.SubjectOrder, order.ID, entity.PhaseDesign)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &DesignCharge{DesignMinutes: order.DesignMinutes, DesignAmount: order.DesignAmount}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find design timer: %w", err)
	}
	minutes, err := c.closeTimer(ctx, r, log)
	if err != nil {
		return nil, nil, err
	}
	charge, err := c.billDesign(ctx, r, order, rate, minutes, eff)
	if err != nil {
		return nil, nil, err
	}
	return log, charge, nil
}

// closeTimer ends a running interval at the current time.
func (c *core) closeTimer(ctx context.Context, r *repository.Repositories, log *entity.TimeLog) (int, error) {
	now := c.now()
	minutes := log.ElapsedMinutes(now)
	ok, err := r.TimeLog.Close(ctx, log.ID, now, minutes)
	if err != nil {
		return 0, fmt.Errorf("close timer: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: timer already stopped", ErrConflictAlreadyApplied)
	}
	log.EndedAt = &now
	log.Minutes = minutes
	return minutes, nil
}

// billDesign adds minutes to the order and reprices its design-labor line.
func (c *core) billDesign(ctx context.Context, r *repository.Repositories, order *entity.SalesOrder, rate *entity.BillingRate, minutes int, eff *effects) (*DesignCharge, error) {
	charge := &DesignCharge{Minutes: minutes}
	if !billable(order, rate) {
		charge.DesignMinutes = order.DesignMinutes
		charge.DesignAmount = order.DesignAmount
		return charge, nil
	}

	order.DesignMinutes += minutes
	amount := rate.ChargeFor(order.DesignMinutes)
	charge.DesignMinutes = order.DesignMinutes
	charge.DesignAmount = amount
	charge.Billed = true
	if amount.IsZero() || amount.Equal(order.DesignAmount) {
		return charge, nil
	}

	taxRate, product, err := c.designLaborTax(ctx, r, rate)
	if err != nil {
		return nil, err
	}
	item := order.DesignLaborItem()
	if item == nil {
		order.Items = append(order.Items, entity.SOItem{
			ID:            uuid.New().String(),
			SOID:          order.ID,
			ProductID:     rate.DesignLaborProductID,
			ProductName:   "Design labor",
			IsDesignLabor: true,
		})
		item = &order.Items[len(order.Items)-1]
		if product != nil {
			item.ProductCode = product.Code
			item.ProductName = product.Name
		}
	}

	before := *order
	item.Reprice(1, amount, taxRate)
	if err := r.Order.SaveItem(ctx, item); err != nil {
		return nil, fmt.Errorf("save design labor line: %w", err)
	}
	order.DesignAmount = amount
	order.RecomputeTotals()

	c.logger.Info("design labor billed",
		zap.String("so_code", order.SOCode),
		zap.Int("design_minutes", order.DesignMinutes),
		zap.String("amount", amount.StringFixed(2)))

	if entry, ok := c.designEntry(&before, order); ok {
		eff.post(entry)
	}
	return charge, nil
}

func (c *core) designLaborTax(ctx context.Context, r *repository.Repositories, rate *entity.BillingRate) (decimal.Decimal, *entity.Product, error) {
	if rate.DesignLaborProductID == "" {
		return rate.FallbackTaxRate, nil, nil
	}
	product, err := r.Product.FindByID(ctx, rate.DesignLaborProductID)
	if errors.Is(err, repository.ErrNotFound) {
		return rate.FallbackTaxRate, nil, nil
	}
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("load design labor product: %w", err)
	}
	if product.TaxRate != nil {
		return *product.TaxRate, product, nil
	}
	return rate.FallbackTaxRate, product, nil
}

// designEntry books the change in order value: receivable against design revenue and tax.
func (c *core) designEntry(before, after *entity.SalesOrder) (ledger.Entry, bool) {
	revenue := after.Subtotal.Sub(before.Subtotal)
	tax := after.TaxAmount.Sub(before.TaxAmount)
	total := revenue.Add(tax)
	if !total.IsPositive() || revenue.IsNegative() || tax.IsNegative() {
		return ledger.Entry{}, false
	}
	lines := []ledger.Line{
		ledger.Debit(c.accounts.Receivable, total),
		ledger.Credit(c.accounts.DesignRevenue, revenue),
	}
	if tax.IsPositive() {
		lines = append(lines, ledger.Credit(c.accounts.TaxPayable, tax))
	}
	return ledger.Entry{
		Date:        c.now(),
		Reference:   after.SOCode,
		Description: fmt.Sprintf("Design labor %s (%d min)", after.SOCode, after.DesignMinutes),
		Lines:       lines,
	}, true
}

// scrapEntry books the cost of scrapped material.
func (c *core) scrapEntry(task *entity.ProductionTask, material *entity.Material, qty int, at time.Time) (ledger.Entry, bool) {
	cost := material.UnitCost.Mul(decimal.NewFromInt(int64(qty))).Round(2)
	if !cost.IsPositive() {
		return ledger.Entry{}, false
	}
	return ledger.Entry{
		Date:        at,
		Reference:   task.TaskCode,
		Description: fmt.Sprintf("Scrap %d x %s", qty, material.Code),
		Lines: []ledger.Line{
			ledger.Debit(c.accounts.ScrapExpense, cost),
			ledger.Credit(c.accounts.InventoryAsset, cost),
		},
	}, true
}
