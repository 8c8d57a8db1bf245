package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementIncome  MovementType = "income"  // ingreso
	MovementExpense MovementType = "expense" // egreso
)

// CashMovement: un ingreso o egreso asentado contra una sesión abierta.
// El libro es solo-agregar: un movimiento nunca se edita ni se borra.
type CashMovement struct {
	ID            uint `gorm:"primaryKey"`
	TenantID      uint `gorm:"index;not null"`
	BranchID      uint `gorm:"index;not null"` // denormalizado de la sesión
	CashSessionID uint `gorm:"index;not null"`
	CashSession   CashSession

	Type          MovementType    `gorm:"size:10;not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null"` // siempre > 0
	Concept       string          `gorm:"size:255;not null"`
	Category      string          `gorm:"size:100"` // etiqueta opcional
	ReceiptNumber string          `gorm:"size:100"` // nro. de comprobante opcional
	Notes         string          `gorm:"size:255"`

	OperatorID uint      `gorm:"not null"`
	Operator   User      `gorm:"foreignKey:OperatorID"`
	RecordedAt time.Time `gorm:"index;not null"`

	CreatedAt time.Time
}
