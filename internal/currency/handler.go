package currency

import (
	"errors"
	"fmt"
	"strings"

	"comercio-backend/internal/auth"
	"comercio-backend/internal/database"
	"comercio-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type RateRequest struct {
	CurrencyID   uint            `json:"currency_id"`
	CurrencyCode string          `json:"currency_code"`
	Rate         decimal.Decimal `json:"rate"`
}

type CreatePriceListRequest struct {
	Name         string        `json:"name"`
	BaseCurrency string        `json:"base_currency"`
	Rates        []RateRequest `json:"rates"`
}

type ConvertRequest struct {
	CurrencyID uint            `json:"currency_id"`
	Amount     decimal.Decimal `json:"amount"`
	Direction  Direction       `json:"direction"` // "from_base" | "to_base"
}

func tenantIDFromCtx(c *fiber.Ctx) (uint, error) {
	tenantID, ok := c.Locals(auth.CtxTenantIDKey).(uint)
	if !ok {
		return 0, fiber.NewError(fiber.StatusForbidden, "No se pudo determinar el comercio")
	}
	return tenantID, nil
}

// -------------------------------------------------
// POST /api/price-lists (solo admin)
// -------------------------------------------------
func CreatePriceListHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := tenantIDFromCtx(c)
		if err != nil {
			return err
		}

		var body CreatePriceListRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}

		body.Name = strings.TrimSpace(body.Name)
		body.BaseCurrency = strings.ToUpper(strings.TrimSpace(body.BaseCurrency))
		if body.Name == "" || len(body.BaseCurrency) != 3 {
			return fiber.NewError(fiber.StatusBadRequest, "Nombre y moneda base (código de 3 letras) son obligatorios")
		}
		for _, r := range body.Rates {
			if r.CurrencyID == 0 || !r.Rate.IsPositive() {
				return fiber.NewError(fiber.StatusBadRequest, "Cada tasa necesita currency_id y rate positivo")
			}
		}

		list := models.PriceList{
			TenantID:     tenantID,
			Name:         body.Name,
			BaseCurrency: body.BaseCurrency,
		}
		for _, r := range body.Rates {
			list.Rates = append(list.Rates, models.CurrencyRate{
				CurrencyID:   r.CurrencyID,
				CurrencyCode: strings.ToUpper(strings.TrimSpace(r.CurrencyCode)),
				Rate:         r.Rate,
			})
		}

		if err := database.DB.Create(&list).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo crear la lista de precios")
		}

		return c.Status(fiber.StatusCreated).JSON(list)
	}
}

// -------------------------------------------------
// GET /api/price-lists
// -------------------------------------------------
func ListPriceListsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := tenantIDFromCtx(c)
		if err != nil {
			return err
		}

		var lists []models.PriceList
		if err := database.DB.Preload("Rates").Where("tenant_id = ?", tenantID).Find(&lists).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar las listas de precios")
		}
		return c.JSON(lists)
	}
}

// -------------------------------------------------
// POST /api/price-lists/:id/convert
// -------------------------------------------------
func ConvertHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, err := tenantIDFromCtx(c)
		if err != nil {
			return err
		}

		var listID uint
		if _, err := fmt.Sscan(c.Params("id"), &listID); err != nil || listID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var body ConvertRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Datos inválidos")
		}

		result, err := svc.Convert(tenantID, listID, body.CurrencyID, body.Amount, body.Direction)
		if err != nil {
			switch {
			case errors.Is(err, ErrListNotFound), errors.Is(err, ErrRateNotFound):
				return fiber.NewError(fiber.StatusNotFound, err.Error())
			case errors.Is(err, ErrBadDirection), errors.Is(err, ErrBadRate):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			default:
				return fiber.NewError(fiber.StatusInternalServerError, "No se pudo convertir el monto")
			}
		}

		return c.JSON(fiber.Map{
			"amount":      body.Amount,
			"direction":   body.Direction,
			"currency_id": body.CurrencyID,
			"result":      result,
		})
	}
}
