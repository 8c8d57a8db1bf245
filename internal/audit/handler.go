package audit

import (
	"fmt"
	"time"

	"comercio-backend/internal/auth"
	"comercio-backend/internal/database"
	"comercio-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// -------------------------------------------------
// GET /api/audit-logs?entity_type=cash_session&branch_id=1&from=2026-01-01&to=2026-01-31
// -------------------------------------------------
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, ok := c.Locals(auth.CtxTenantIDKey).(uint)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "No se pudo determinar el comercio")
		}

		q := database.DB.Model(&models.AuditLog{}).Where("tenant_id = ?", tenantID)

		// Los operadores solo ven el rastro de su propia sucursal
		role, _ := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
		if role == models.RoleOperator {
			branchIDPtr, ok := c.Locals(auth.CtxBranchIDKey).(*uint)
			if !ok || branchIDPtr == nil {
				return fiber.NewError(fiber.StatusForbidden, "El operador no tiene sucursal asignada")
			}
			q = q.Where("branch_id = ?", *branchIDPtr)
		} else if bidStr := c.Query("branch_id"); bidStr != "" {
			var parsed uint
			if _, err := fmt.Sscan(bidStr, &parsed); err != nil || parsed == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "branch_id inválido")
			}
			q = q.Where("branch_id = ?", parsed)
		}

		if entityType := c.Query("entity_type"); entityType != "" {
			q = q.Where("entity_type = ?", entityType)
		}

		if fromStr := c.Query("from"); fromStr != "" {
			from, err := time.Parse("2006-01-02", fromStr)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "fecha 'from' inválida")
			}
			q = q.Where("created_at >= ?", from)
		}
		if toStr := c.Query("to"); toStr != "" {
			to, err := time.Parse("2006-01-02", toStr)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "fecha 'to' inválida")
			}
			q = q.Where("created_at <= ?", to.AddDate(0, 0, 1).Add(-time.Second))
		}

		var logs []models.AuditLog
		if err := q.Order("created_at desc, id desc").Limit(500).Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudieron listar los logs")
		}

		return c.JSON(logs)
	}
}
