package currency

import (
	"errors"

	"comercio-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Direction tipa el sentido de la conversión; nada de mapas posicionales
// implícitos: cada tasa vive etiquetada por (lista, moneda).
type Direction string

const (
	// FromBase: de la moneda base de la lista hacia la moneda destino
	FromBase Direction = "from_base"
	// ToBase: de la moneda destino hacia la moneda base de la lista
	ToBase Direction = "to_base"
)

var (
	ErrListNotFound = errors.New("lista de precios inexistente")
	ErrRateNotFound = errors.New("no hay tasa para esa moneda en la lista")
	ErrBadDirection = errors.New("dirección inválida")
	ErrBadRate      = errors.New("la tasa registrada no es positiva")
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Convert aplica la tasa (listID, currencyID) en el sentido pedido.
// Rate = unidades de la moneda destino por una unidad de la base, así que
// from_base multiplica y to_base divide (redondeo a 4 decimales, igual que
// las columnas de dinero).
func (s *Service) Convert(tenantID, listID, currencyID uint, amount decimal.Decimal, dir Direction) (decimal.Decimal, error) {
	if dir != FromBase && dir != ToBase {
		return decimal.Zero, ErrBadDirection
	}

	var list models.PriceList
	if err := s.db.Where("id = ? AND tenant_id = ?", listID, tenantID).First(&list).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrListNotFound
		}
		return decimal.Zero, err
	}

	var rate models.CurrencyRate
	if err := s.db.Where("price_list_id = ? AND currency_id = ?", listID, currencyID).First(&rate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrRateNotFound
		}
		return decimal.Zero, err
	}

	if !rate.Rate.IsPositive() {
		return decimal.Zero, ErrBadRate
	}

	if dir == FromBase {
		return amount.Mul(rate.Rate).Round(4), nil
	}
	return amount.DivRound(rate.Rate, 4), nil
}
