// Package ledger hands accounting entries to the general ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mocks/mock_poster.go -package=mocks . Poster

var (
	ErrEmptyEntry = errors.New("ledger: entry has no lines")
	ErrUnbalanced = errors.New("ledger: debits do not equal credits")
)

// Poster posts a journal entry to the general ledger.
type Poster interface {
	Post(ctx context.Context, entry Entry) error
}

// Entry is one journal entry.
type Entry struct {
	Date        time.Time `json:"date"`
	Reference   string    `json:"reference"`
	Description string    `json:"description"`
	Lines       []Line    `json:"lines"`
}

// Line debits or credits one account. Exactly one side is non-zero.
type Line struct {
	Account string          `json:"account"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
}

func Debit(account string, amount decimal.Decimal) Line {
	return Line{Account: account, Debit: amount, Credit: decimal.Zero}
}

func Credit(account string, amount decimal.Decimal) Line {
	return Line{Account: account, Debit: decimal.Zero, Credit: amount}
}

// Totals sums both sides of the entry.
func (e Entry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// Validate checks the entry is balanced and has no negative or empty lines.
func (e Entry) Validate() error {
	if len(e.Lines) == 0 {
		return ErrEmptyEntry
	}
	for i, l := range e.Lines {
		if l.Account == "" {
			return fmt.Errorf("ledger: line %d has no account", i)
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return fmt.Errorf("ledger: line %d has a negative amount", i)
		}
	}
	debit, credit := e.Totals()
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: %s != %s", ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	return nil
}

// Accounts are the chart-of-accounts codes the MES posts to.
type Accounts struct {
	Receivable     string `mapstructure:"receivable"`
	DesignRevenue  string `mapstructure:"design_revenue"`
	TaxPayable     string `mapstructure:"tax_payable"`
	ScrapExpense   string `mapstructure:"scrap_expense"`
	InventoryAsset string `mapstructure:"inventory_asset"`
}

// DefaultAccounts is used when the configuration leaves the chart empty.
var DefaultAccounts = Accounts{
	Receivable:     "1130",
	DesignRevenue:  "4120",
	TaxPayable:     "2150",
	ScrapExpense:   "5140",
	InventoryAsset: "1140",
}

// LogPoster only logs entries. It is used when no broker is configured.
type LogPoster struct {
	logger *zap.Logger
}

func NewLogPoster(logger *zap.Logger) *LogPoster {
	return &LogPoster{logger: logger}
}

func (p *LogPoster) Post(_ context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	debit, _ := entry.Totals()
	p.logger.Info("journal entry",
		zap.String("reference", entry.Reference),
		zap.String("description", entry.Description),
		zap.String("amount", debit.StringFixed(2)),
		zap.Int("lines", len(entry.Lines)))
	return nil
}
