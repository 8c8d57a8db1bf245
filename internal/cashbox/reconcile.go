package cashbox

import "github.com/shopspring/decimal"

type Classification string

const (
	Balanced  Classification = "balanced"  // cuadra
	Surplus   Classification = "surplus"   // sobrante
	Shortfall Classification = "shortfall" // faltante
)

// Reconciliation: resultado inmutable del arqueo de cierre.
type Reconciliation struct {
	CountedAmount  decimal.Decimal `json:"counted_amount"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	Difference     decimal.Decimal `json:"difference"`
	Classification Classification  `json:"classification"`
}

// Reconcile compara el efectivo contado contra el saldo esperado.
// difference = contado - esperado. |difference| < epsilon se clasifica como
// "balanced"; epsilon absorbe redondeo, no discrepancias reales.
// Determinística y sin I/O: el cierre es el único que persiste algo.
func Reconcile(countedAmount, expectedAmount, epsilon decimal.Decimal) Reconciliation {
	diff := countedAmount.Sub(expectedAmount)

	var class Classification
	switch {
	case diff.Abs().LessThan(epsilon):
		class = Balanced
	case diff.IsPositive():
		class = Surplus
	default:
		class = Shortfall
	}

	return Reconciliation{
		CountedAmount:  countedAmount,
		ExpectedAmount: expectedAmount,
		Difference:     diff,
		Classification: class,
	}
}
