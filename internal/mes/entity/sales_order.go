package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesOrder is a customer order moving through design and production.
type SalesOrder struct {
	ID                string          `json:"id" gorm:"primaryKey;size:36"`
	SOCode            string          `json:"so_code" gorm:"size:50;not null;uniqueIndex"`
	CustomerID        string          `json:"customer_id" gorm:"size:36;not null;index"`
	Status            OrderStatus     `json:"status" gorm:"size:20;not null;default:PENDING;index"`
	DesignStatus      DesignStatus    `json:"design_status" gorm:"size:20;not null;default:PENDING"`
	DesignRevisions   int             `json:"design_revisions" gorm:"not null;default:0"`
	BillingAuthorized bool            `json:"billing_authorized" gorm:"not null;default:false"`
	DesignMinutes     int             `json:"design_minutes" gorm:"not null;default:0"`
	DesignAmount      decimal.Decimal `json:"design_amount" gorm:"type:decimal(12,2);default:0"`
	Subtotal          decimal.Decimal `json:"subtotal" gorm:"type:decimal(12,2);default:0"`
	TaxAmount         decimal.Decimal `json:"tax_amount" gorm:"type:decimal(12,2);default:0"`
	TotalAmount       decimal.Decimal `json:"total_amount" gorm:"type:decimal(12,2);default:0"`
	TrackingToken     string          `json:"tracking_token" gorm:"size:64;not null;uniqueIndex"`
	ArtworkPath       string          `json:"artwork_path" gorm:"size:500"`
	FinishedAt        *time.Time      `json:"finished_at"`
	Notes             string          `json:"notes" gorm:"type:text"`
	CreatedBy         string          `json:"created_by" gorm:"size:64;not null"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	Items []SOItem `json:"items,omitempty" gorm:"foreignKey:SOID"`
}

func (SalesOrder) TableName() string {
	return "mes_sales_orders"
}

// RecomputeTotals sums subtotal, tax and total over the order lines.
func (o *SalesOrder) RecomputeTotals() {
	subtotal, tax := decimal.Zero, decimal.Zero
	for _, item := range o.Items {
		subtotal = subtotal.Add(item.Amount)
		tax = tax.Add(item.TaxAmount)
	}
	o.Subtotal = subtotal
	o.TaxAmount = tax
	o.TotalAmount = subtotal.Add(tax)
}

// DesignLaborItem returns the synthetic design-labor line, if any.
func (o *SalesOrder) DesignLaborItem() *SOItem {
	for i := range o.Items {
		if o.Items[i].IsDesignLabor {
			return &o.Items[i]
		}
	}
	return nil
}

// SOItem is one sales order line.
type SOItem struct {
	ID            string          `json:"id" gorm:"primaryKey;size:36"`
	SOID          string          `json:"so_id" gorm:"size:36;not null;index"`
	ProductID     string          `json:"product_id" gorm:"size:36;not null"`
	ProductCode   string          `json:"product_code" gorm:"size:64"`
	ProductName   string          `json:"product_name" gorm:"size:128"`
	Quantity      float64         `json:"quantity" gorm:"type:decimal(12,4);not null"`
	UnitPrice     decimal.Decimal `json:"unit_price" gorm:"type:decimal(12,4);not null"`
	TaxRate       decimal.Decimal `json:"tax_rate" gorm:"type:decimal(6,4);default:0"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	TaxAmount     decimal.Decimal `json:"tax_amount" gorm:"type:decimal(12,2);default:0"`
	IsDesignLabor bool            `json:"is_design_labor" gorm:"not null;default:false"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (SOItem) TableName() string {
	return "mes_so_items"
}

// Reprice sets quantity and unit price and recomputes the line amounts.
func (i *SOItem) Reprice(quantity float64, unitPrice, taxRate decimal.Decimal) {
	i.Quantity = quantity
	i.UnitPrice = unitPrice
	i.TaxRate = taxRate
	i.Amount = unitPrice.Mul(decimal.NewFromFloat(quantity)).Round(2)
	i.TaxAmount = i.Amount.Mul(taxRate).Round(2)
}

// DesignRevision is an immutable record of one artwork iteration.
type DesignRevision struct {
	ID             string          `json:"id" gorm:"primaryKey;size:36"`
	SOID           string          `json:"so_id" gorm:"size:36;not null;index"`
	Attempt        int             `json:"attempt" gorm:"not null"`
	ImagePath      string          `json:"image_path" gorm:"size:500"`
	StaffComments  string          `json:"staff_comments" gorm:"type:text"`
	ClientComments string          `json:"client_comments" gorm:"type:text"`
	Outcome        RevisionOutcome `json:"outcome" gorm:"size:20;not null"`
	CreatedBy      string          `json:"created_by" gorm:"size:64;not null"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (DesignRevision) TableName() string {
	return "mes_design_revisions"
}
