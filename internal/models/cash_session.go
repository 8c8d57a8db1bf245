package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CashSessionStatus string

const (
	CashSessionOpen   CashSessionStatus = "open"
	CashSessionClosed CashSessionStatus = "closed"
)

// CashSession: un ciclo de apertura a cierre de una caja.
//
// La exclusividad "una sola sesión abierta por sucursal" NO se valida en Go:
// la garantiza el índice único parcial sobre (tenant_id, branch_id) con
// status = 'open' (ver internal/database). Los campos de cierre se escriben
// todos juntos, una sola vez, y nunca se vuelven a tocar.
type CashSession struct {
	ID       uint `gorm:"primaryKey"`
	TenantID uint `gorm:"index;not null"`
	BranchID uint `gorm:"index;not null"`
	Branch   Branch
	// Quién abrió la caja
	OpenedByID uint `gorm:"not null"`
	OpenedBy   User `gorm:"foreignKey:OpenedByID"`

	Status        CashSessionStatus `gorm:"size:10;not null;index"`
	OpenedAt      time.Time         `gorm:"not null"`
	OpeningAmount decimal.Decimal   `gorm:"type:decimal(20,4);not null"`
	OpeningNotes  string            `gorm:"size:255"`

	// Campos de cierre: null hasta que la sesión se cierra, inmutables después
	ClosedAt       *time.Time
	ClosedByID     *uint
	CountedAmount  *decimal.Decimal `gorm:"type:decimal(20,4)"`
	ExpectedAmount *decimal.Decimal `gorm:"type:decimal(20,4)"`
	// Difference = contado - esperado
	Difference   *decimal.Decimal `gorm:"type:decimal(20,4)"`
	ClosingNotes string           `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
