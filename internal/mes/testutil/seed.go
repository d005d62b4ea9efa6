package testutil

import (
	"strings"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func newID() string {
	return uuid.New().String()
}

func shortCode(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:6])
}

// SeedWorkCenter creates a nesting-capable large format printer unless wc says otherwise.
func SeedWorkCenter(t *testing.T, db *gorm.DB, wc entity.WorkCenter) *entity.WorkCenter {
	t.Helper()
	if wc.ID == "" {
		wc.ID = newID()
	}
	if wc.Code == "" {
		wc.Code = shortCode("WC")
	}
	if wc.Name == "" {
		wc.Name = "Printer " + wc.Code
	}
	if wc.Category == "" {
		wc.Category = entity.CategoryLargeFormat
	}
	if wc.DailyCapacity == 0 {
		wc.DailyCapacity = 1000
	}
	wc.Active = true
	if err := db.Create(&wc).Error; err != nil {
		t.Fatalf("Failed to seed work center: %v", err)
	}
	return &wc
}

// SeedMaterial creates a 60x90 sheet substrate unless m says otherwise.
func SeedMaterial(t *testing.T, db *gorm.DB, m entity.Material) *entity.Material {
	t.Helper()
	if m.ID == "" {
		m.ID = newID()
	}
	if m.Code == "" {
		m.Code = shortCode("MAT")
	}
	if m.Name == "" {
		m.Name = "Vinyl " + m.Code
	}
	if m.Unit == "" {
		m.Unit = "sheet"
	}
	if m.SheetWidth == 0 && m.SheetHeight == 0 {
		m.SheetWidth, m.SheetHeight = 60, 90
	}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("Failed to seed material: %v", err)
	}
	return &m
}

// SeedProduct creates a manufactured 10x10 piece printed at wc.
func SeedProduct(t *testing.T, db *gorm.DB, wc *entity.WorkCenter, material *entity.Material, p entity.Product) *entity.Product {
	t.Helper()
	if p.ID == "" {
		p.ID = newID()
	}
	if p.Code == "" {
		p.Code = shortCode("PRD")
	}
	if p.Name == "" {
		p.Name = "Sticker " + p.Code
	}
	if wc != nil {
		p.WorkCenterID = &wc.ID
		if p.PrintCategory == "" {
			p.PrintCategory = wc.Category
		}
	}
	if material != nil {
		p.MaterialID = &material.ID
	}
	if p.PieceWidth == 0 && p.PieceHeight == 0 {
		p.PieceWidth, p.PieceHeight = 10, 10
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	return &p
}

// OrderLine is one line of a seeded order.
type OrderLine struct {
	Product   *entity.Product
	Quantity  float64
	UnitPrice decimal.Decimal
}

// SeedOrder creates a pending order with the given lines.
func SeedOrder(t *testing.T, db *gorm.DB, lines ...OrderLine) *entity.SalesOrder {
	t.Helper()
	order := &entity.SalesOrder{
		ID:            newID(),
		SOCode:        shortCode("SO"),
		CustomerID:    newID(),
		Status:        entity.OrderStatusPending,
		DesignStatus:  entity.DesignStatusPending,
		TrackingToken: uuid.NewString(),
		CreatedBy:     "test",
	}
	for _, l := range lines {
		item := entity.SOItem{
			ID:          newID(),
			SOID:        order.ID,
			ProductID:   l.Product.ID,
			ProductCode: l.Product.Code,
			ProductName: l.Product.Name,
		}
		taxRate := decimal.Zero
		if l.Product.TaxRate != nil {
			taxRate = *l.Product.TaxRate
		}
		item.Reprice(l.Quantity, l.UnitPrice, taxRate)
		order.Items = append(order.Items, item)
	}
	order.RecomputeTotals()
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("Failed to seed order: %v", err)
	}
	return order
}

// SeedBillingRate stores the default tenant rate.
func SeedBillingRate(t *testing.T, db *gorm.DB, rate entity.BillingRate) *entity.BillingRate {
	t.Helper()
	if rate.TenantID == "" {
		rate.TenantID = entity.DefaultTenant
	}
	if err := db.Create(&rate).Error; err != nil {
		t.Fatalf("Failed to seed billing rate: %v", err)
	}
	return &rate
}

// Reload reads a fresh copy of a row by primary key.
func Reload[T any](t *testing.T, db *gorm.DB, id string) *T {
	t.Helper()
	var out T
	if err := db.Where("id = ?", id).First(&out).Error; err != nil {
		t.Fatalf("Failed to reload %T %s: %v", out, id, err)
	}
	return &out
}
