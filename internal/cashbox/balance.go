package cashbox

import (
	"comercio-backend/internal/models"

	"github.com/shopspring/decimal"
)

// Summary: saldo y totales derivados del libro completo de una sesión.
type Summary struct {
	Balance      decimal.Decimal `json:"balance"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	CountIncome  int             `json:"count_income"`
	CountExpense int             `json:"count_expense"`
}

// ComputeBalance deriva el saldo esperado a partir del monto de apertura y
// todos los movimientos. Es la ÚNICA fuente del "monto esperado": el saldo
// nunca se cachea ni se acumula en otro lado, así no puede desviarse del
// libro. Aritmética decimal de punto fijo, nunca float.
func ComputeBalance(openingAmount decimal.Decimal, movements []models.CashMovement) Summary {
	s := Summary{
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}

	for _, m := range movements {
		switch m.Type {
		case models.MovementIncome:
			s.TotalIncome = s.TotalIncome.Add(m.Amount)
			s.CountIncome++
		case models.MovementExpense:
			s.TotalExpense = s.TotalExpense.Add(m.Amount)
			s.CountExpense++
		}
	}

	s.Balance = openingAmount.Add(s.TotalIncome).Sub(s.TotalExpense)
	return s
}
