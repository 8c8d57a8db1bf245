package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceList: lista de precios con moneda base explícita.
type PriceList struct {
	ID           uint   `gorm:"primaryKey"`
	TenantID     uint   `gorm:"index;not null"`
	Name         string `gorm:"size:100;not null"`
	BaseCurrency string `gorm:"size:3;not null"` // código ISO 4217
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Rates []CurrencyRate
}

// CurrencyRate: tasa de conversión etiquetada por (lista, moneda).
// Rate = unidades de la moneda destino por una unidad de la moneda base.
type CurrencyRate struct {
	ID          uint `gorm:"primaryKey"`
	PriceListID uint `gorm:"not null;uniqueIndex:idx_rate_list_currency"`
	CurrencyID  uint `gorm:"not null;uniqueIndex:idx_rate_list_currency"`
	// Código legible de la moneda destino ("USD", "ARS", ...)
	CurrencyCode string          `gorm:"size:3;not null"`
	Rate         decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
