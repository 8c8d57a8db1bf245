package cashbox

import (
	"fmt"
	"time"

	"comercio-backend/internal/audit"
	"comercio-backend/internal/auth"
	"comercio-backend/internal/config"
	"comercio-backend/internal/database"
	"comercio-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type OpenSessionRequest struct {
	// Para admin es obligatorio; el operador abre su propia sucursal
	BranchID      *uint           `json:"branch_id"`
	OpeningAmount decimal.Decimal `json:"opening_amount"`
	Notes         string          `json:"notes"`
}

type RecordMovementRequest struct {
	Type          models.MovementType `json:"type"` // "income" | "expense"
	Amount        decimal.Decimal     `json:"amount"`
	Concept       string              `json:"concept"`
	Category      string              `json:"category"`
	ReceiptNumber string              `json:"receipt_number"`
	Notes         string              `json:"notes"`
}

type CloseSessionRequest struct {
	CountedAmount decimal.Decimal `json:"counted_amount"`
	Notes         string          `json:"notes"`
}

type SessionResponse struct {
	ID            uint                     `json:"id"`
	BranchID      uint                     `json:"branch_id"`
	Status        models.CashSessionStatus `json:"status"`
	OpenedByID    uint                     `json:"opened_by_id"`
	OpenedAt      string                   `json:"opened_at"`
	OpeningAmount decimal.Decimal          `json:"opening_amount"`
	OpeningNotes  string                   `json:"opening_notes,omitempty"`

	ClosedAt       *string          `json:"closed_at,omitempty"`
	ClosedByID     *uint            `json:"closed_by_id,omitempty"`
	CountedAmount  *decimal.Decimal `json:"counted_amount,omitempty"`
	ExpectedAmount *decimal.Decimal `json:"expected_amount,omitempty"`
	Difference     *decimal.Decimal `json:"difference,omitempty"`
	ClosingNotes   string           `json:"closing_notes,omitempty"`
}

type MovementResponse struct {
	ID            uint                `json:"id"`
	BranchID      uint                `json:"branch_id"`
	CashSessionID uint                `json:"cash_session_id"`
	Type          models.MovementType `json:"type"`
	Amount        decimal.Decimal     `json:"amount"`
	Concept       string              `json:"concept"`
	Category      string              `json:"category,omitempty"`
	ReceiptNumber string              `json:"receipt_number,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	OperatorID    uint                `json:"operator_id"`
	RecordedAt    string              `json:"recorded_at"`
}

const timeLayout = "2006-01-02 15:04:05"

func sessionToResponse(s *models.CashSession) SessionResponse {
	resp := SessionResponse{
		ID:             s.ID,
		BranchID:       s.BranchID,
		Status:         s.Status,
		OpenedByID:     s.OpenedByID,
		OpenedAt:       s.OpenedAt.Format(timeLayout),
		OpeningAmount:  s.OpeningAmount,
		OpeningNotes:   s.OpeningNotes,
		ClosedByID:     s.ClosedByID,
		CountedAmount:  s.CountedAmount,
		ExpectedAmount: s.ExpectedAmount,
		Difference:     s.Difference,
		ClosingNotes:   s.ClosingNotes,
	}
	if s.ClosedAt != nil {
		closedAt := s.ClosedAt.Format(timeLayout)
		resp.ClosedAt = &closedAt
	}
	return resp
}

func movementToResponse(m *models.CashMovement) MovementResponse {
	return MovementResponse{
		ID:            m.ID,
		BranchID:      m.BranchID,
		CashSessionID: m.CashSessionID,
		Type:          m.Type,
		Amount:        m.Amount,
		Concept:       m.Concept,
		Category:      m.Category,
		ReceiptNumber: m.ReceiptNumber,
		Notes:         m.Notes,
		OperatorID:    m.OperatorID,
		RecordedAt:    m.RecordedAt.Format(timeLayout),
	}
}

// scopeFromCtx arma el alcance del que llama a partir de los claims del
// token. El núcleo nunca lee una sucursal "activa" implícita.
func scopeFromCtx(c *fiber.Ctx) (Scope, error) {
	userID, ok := c.Locals(auth.CtxUserIDKey).(uint)
	if !ok {
		return Scope{}, fiber.NewError(fiber.StatusForbidden, "No se pudo determinar el usuario")
	}
	role, ok := c.Locals(auth.CtxUserRoleKey).(models.UserRole)
	if !ok {
		return Scope{}, fiber.NewError(fiber.StatusForbidden, "No se pudo determinar el rol")
	}
	tenantID, ok := c.Locals(auth.CtxTenantIDKey).(uint)
	if !ok {
		return Scope{}, fiber.NewError(fiber.StatusForbidden, "No se pudo determinar el comercio")
	}
	scope := Scope{UserID: userID, Role: role, TenantID: tenantID}
	if bPtr, ok := c.Locals(auth.CtxBranchIDKey).(*uint); ok {
		scope.BranchID = bPtr
	}
	return scope, nil
}

func getUserName(userID uint) string {
	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		return ""
	}
	return user.Name
}

func parseIDParam(c *fiber.Ctx) (uint, error) {
	var id uint
	if _, err := fmt.Sscan(c.Params("id"), &id); err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "id inválido")
	}
	return id, nil
}

// -------------------------------------------------
// POST /api/cash-sessions
// -------------------------------------------------
func OpenSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := scopeFromCtx(c)
		if err != nil {
			return err
		}

		var body OpenSessionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}

		var branchID uint
		switch {
		case scope.Role == models.RoleOperator:
			if scope.BranchID == nil {
				return fiber.NewError(fiber.StatusForbidden, "El operador no tiene sucursal asignada")
			}
			branchID = *scope.BranchID
		case body.BranchID != nil:
			branchID = *body.BranchID
		default:
			return fiber.NewError(fiber.StatusBadRequest, "branch_id es obligatorio")
		}

		session, err := svc.Open(scope, branchID, body.OpeningAmount, body.Notes)
		if err != nil {
			return err
		}

		writeAuditLog(scope, session.BranchID, "cash_session", session.ID, models.AuditActionCreate,
			fmt.Sprintf("Caja abierta con %s", session.OpeningAmount.StringFixed(2)),
			nil, sessionToResponse(session))

		return c.Status(fiber.StatusCreated).JSON(sessionToResponse(session))
	}
}

// -------------------------------------------------
// POST /api/cash-sessions/:id/movements
// -------------------------------------------------
func RecordMovementHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := scopeFromCtx(c)
		if err != nil {
			return err
		}
		sessionID, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var body RecordMovementRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}

		movement, err := svc.Record(scope, sessionID, RecordInput{
			Type:          body.Type,
			Amount:        body.Amount,
			Concept:       body.Concept,
			Category:      body.Category,
			ReceiptNumber: body.ReceiptNumber,
			Notes:         body.Notes,
		})
		if err != nil {
			return err
		}

		writeAuditLog(scope, movement.BranchID, "cash_movement", movement.ID, models.AuditActionCreate,
			fmt.Sprintf("Movimiento %s: %s - %s", movement.Type, movement.Concept, movement.Amount.StringFixed(2)),
			nil, movementToResponse(movement))

		return c.Status(fiber.StatusCreated).JSON(movementToResponse(movement))
	}
}

// -------------------------------------------------
// GET /api/cash-sessions/:id
// -------------------------------------------------
func GetSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := scopeFromCtx(c)
		if err != nil {
			return err
		}
		sessionID, err := parseIDParam(c)
		if err != nil {
			return err
		}

		session, movements, err := svc.Get(scope, sessionID)
		if err != nil {
			return err
		}

		movs := make([]MovementResponse, 0, len(movements))
		for i := range movements {
			movs = append(movs, movementToResponse(&movements[i]))
		}

		return c.JSON(fiber.Map{
			"session":   sessionToResponse(session),
			"movements": movs,
		})
	}
}

// -------------------------------------------------
// GET /api/cash-sessions/:id/summary
// -------------------------------------------------
func SessionSummaryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := scopeFromCtx(c)
		if err != nil {
			return err
		}
		sessionID, err := parseIDParam(c)
		if err != nil {
			return err
		}

		summary, err := svc.Summary(scope, sessionID)
		if err != nil {
			return err
		}
		return c.JSON(summary)
	}
}

// -------------------------------------------------
// POST /api/cash-sessions/:id/close
// -------------------------------------------------
func CloseSessionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := scopeFromCtx(c)
		if err != nil {
			return err
		}
		sessionID, err := parseIDParam(c)
		if err != nil {
			return err
		}

		var body CloseSessionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la petición inválido")
		}

		session, rec, err := svc.Close(scope, sessionID, body.CountedAmount, body.Notes)
		if err != nil {
			return err
		}

		writeAuditLog(scope, session.BranchID, "cash_session", session.ID, models.AuditActionClose,
			fmt.Sprintf("Caja cerrada: contado %s, esperado %s (%s)",
				rec.CountedAmount.StringFixed(2), rec.ExpectedAmount.StringFixed(2), rec.Classification),
			nil, sessionToResponse(session))

		return c.JSON(fiber.Map{
			"session":        sessionToResponse(session),
			"reconciliation": rec,
		})
	}
}

// -------------------------------------------------
// GET /api/cash-sessions?branch_id=1&status=open&from=2026-01-01&to=2026-01-31
// -------------------------------------------------
func ListSessionsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := scopeFromCtx(c)
		if err != nil {
			return err
		}

		var filter ListFilter

		if bidStr := c.Query("branch_id"); bidStr != "" {
			var parsed uint
			if _, err := fmt.Sscan(bidStr, &parsed); err != nil || parsed == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "branch_id inválido")
			}
			filter.BranchID = &parsed
		}

		if statusStr := c.Query("status"); statusStr != "" {
			status := models.CashSessionStatus(statusStr)
			if status != models.CashSessionOpen && status != models.CashSessionClosed {
				return fiber.NewError(fiber.StatusBadRequest, "status inválido (open|closed)")
			}
			filter.Status = status
		}

		if fromStr := c.Query("from"); fromStr != "" {
			from, err := time.Parse("2006-01-02", fromStr)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "fecha 'from' inválida, debe ser YYYY-MM-DD")
			}
			filter.From = &from
		}

		if toStr := c.Query("to"); toStr != "" {
			to, err := time.Parse("2006-01-02", toStr)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "fecha 'to' inválida, debe ser YYYY-MM-DD")
			}
			// inclusivo hasta el final del día
			end := to.AddDate(0, 0, 1).Add(-time.Second)
			filter.To = &end
		}

		sessions, err := svc.List(scope, filter)
		if err != nil {
			return err
		}

		resp := make([]SessionResponse, 0, len(sessions))
		for i := range sessions {
			resp = append(resp, sessionToResponse(&sessions[i]))
		}
		return c.JSON(resp)
	}
}

// writeAuditLog deja rastro de la operación; un fallo acá no voltea la
// operación ya confirmada, solo se loguea.
func writeAuditLog(scope Scope, branchID uint, entityType string, entityID uint, action models.AuditAction, description string, before, after any) {
	var branchPtr *uint
	if branchID != 0 {
		branchPtr = &branchID
	}
	if err := audit.WriteLog(audit.LogOptions{
		TenantID:    scope.TenantID,
		BranchID:    branchPtr,
		UserID:      scope.UserID,
		UserName:    getUserName(scope.UserID),
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Description: description,
		Before:      before,
		After:       after,
	}); err != nil {
		config.LogError("cashbox", "writeAuditLog", entityType, err)
	}
}
