package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTenant is the single tenant of a standalone installation.
const DefaultTenant = "default"

// BillingRate is the tenant's design billing configuration.
type BillingRate struct {
	TenantID             string          `json:"tenant_id" gorm:"primaryKey;size:36"`
	FirstHourPrice       decimal.Decimal `json:"first_hour_price" gorm:"type:decimal(12,2);not null"`
	AdditionalHourPrice  decimal.Decimal `json:"additional_hour_price" gorm:"type:decimal(12,2);not null"`
	FreeRevisions        int             `json:"free_revisions" gorm:"not null;default:0"`
	AutoBilling          bool            `json:"auto_billing" gorm:"not null;default:false"`
	DesignLaborProductID string          `json:"design_labor_product_id" gorm:"size:36"`
	FallbackTaxRate      decimal.Decimal `json:"fallback_tax_rate" gorm:"type:decimal(6,4);default:0"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (BillingRate) TableName() string {
	return "mes_billing_rates"
}

// ChargeFor prices design minutes: the first hour is a flat fee and every started additional
// hour is billed in full.
func (r BillingRate) ChargeFor(minutes int) decimal.Decimal {
	if minutes <= 0 {
		return decimal.Zero
	}
	if minutes <= 60 {
		return r.FirstHourPrice
	}
	extraHours := (minutes - 60 + 59) / 60
	return r.FirstHourPrice.Add(r.AdditionalHourPrice.Mul(decimal.NewFromInt(int64(extraHours))))
}

// RequiresAuthorization reports whether revision number n is past the free allowance.
func (r BillingRate) RequiresAuthorization(n int) bool {
	return n > r.FreeRevisions
}
