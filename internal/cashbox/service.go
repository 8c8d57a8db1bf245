package cashbox

import (
	"errors"
	"strings"
	"time"

	"comercio-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Scope: identidad y alcance del que llama, siempre explícitos. El servicio
// nunca lee una "sucursal activa" global; tenant y sucursal vienen del token
// en el borde HTTP.
type Scope struct {
	TenantID uint
	UserID   uint
	Role     models.UserRole
	BranchID *uint // sucursal del operador; nil para admin
}

func (s Scope) canActOnBranch(branchID uint) bool {
	if s.Role == models.RoleAdmin {
		return true
	}
	return s.BranchID != nil && *s.BranchID == branchID
}

type Service struct {
	db      *gorm.DB
	epsilon decimal.Decimal
	locks   sessionLocks
}

func NewService(db *gorm.DB, epsilon decimal.Decimal) *Service {
	return &Service{db: db, epsilon: epsilon}
}

type RecordInput struct {
	Type          models.MovementType
	Amount        decimal.Decimal
	Concept       string
	Category      string
	ReceiptNumber string
	Notes         string
}

type ListFilter struct {
	BranchID *uint
	Status   models.CashSessionStatus
	From     *time.Time
	To       *time.Time
}

// Open abre una caja para la sucursal con el monto inicial contado.
// La exclusividad por sucursal la decide el índice único parcial, no un
// chequeo previo: si dos aperturas llegan a la vez, una sola inserta y la
// otra recibe conflicto.
func (s *Service) Open(scope Scope, branchID uint, openingAmount decimal.Decimal, notes string) (*models.CashSession, error) {
	if openingAmount.IsNegative() {
		return nil, errValidation("opening_amount", "el monto de apertura no puede ser negativo")
	}

	var branch models.Branch
	if err := s.db.Where("id = ? AND tenant_id = ?", branchID, scope.TenantID).First(&branch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("branch")
		}
		return nil, err
	}
	if !scope.canActOnBranch(branchID) {
		return nil, errAuthorization("la sucursal no pertenece a tu alcance")
	}

	session := models.CashSession{
		TenantID:      scope.TenantID,
		BranchID:      branchID,
		OpenedByID:    scope.UserID,
		Status:        models.CashSessionOpen,
		OpenedAt:      time.Now(),
		OpeningAmount: openingAmount,
		OpeningNotes:  strings.TrimSpace(notes),
	}
	if err := s.db.Create(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errConflict("ya existe una caja abierta para esta sucursal")
		}
		return nil, err
	}

	sessionsOpened.Inc()
	return &session, nil
}

// Record asienta un movimiento contra una caja abierta. No toca la fila de
// la sesión ni recalcula saldos: el saldo se deriva siempre del libro.
func (s *Service) Record(scope Scope, sessionID uint, in RecordInput) (*models.CashMovement, error) {
	if in.Type != models.MovementIncome && in.Type != models.MovementExpense {
		return nil, errValidation("type", "debe ser income o expense")
	}
	if !in.Amount.IsPositive() {
		return nil, errValidation("amount", "el monto debe ser mayor a cero")
	}
	in.Concept = strings.TrimSpace(in.Concept)
	if in.Concept == "" {
		return nil, errValidation("concept", "el concepto es obligatorio")
	}

	// Serializa contra un cierre en vuelo de la misma sesión
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.loadSession(s.db, scope, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.CashSessionClosed {
		return nil, errSessionClosed()
	}

	movement := models.CashMovement{
		TenantID:      session.TenantID,
		BranchID:      session.BranchID,
		CashSessionID: session.ID,
		Type:          in.Type,
		Amount:        in.Amount,
		Concept:       in.Concept,
		Category:      strings.TrimSpace(in.Category),
		ReceiptNumber: strings.TrimSpace(in.ReceiptNumber),
		Notes:         strings.TrimSpace(in.Notes),
		OperatorID:    scope.UserID,
		RecordedAt:    time.Now(),
	}
	if err := s.db.Create(&movement).Error; err != nil {
		return nil, err
	}

	movementsRecorded.WithLabelValues(string(in.Type)).Inc()
	return &movement, nil
}

// Close congela la sesión: calcula el esperado sobre el libro completo,
// arquea contra lo contado y pasa a closed en una sola escritura condicional.
// Transición de una sola vía; el segundo cierre falla, nunca re-arquea.
func (s *Service) Close(scope Scope, sessionID uint, countedAmount decimal.Decimal, notes string) (*models.CashSession, *Reconciliation, error) {
	if countedAmount.IsNegative() {
		return nil, nil, errValidation("counted_amount", "el monto contado no puede ser negativo")
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.loadSession(s.db, scope, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.Status == models.CashSessionClosed {
		return nil, nil, errAlreadyClosed()
	}

	var rec Reconciliation
	err = s.db.Transaction(func(tx *gorm.DB) error {
		movements, err := listMovements(tx, session.ID)
		if err != nil {
			return err
		}

		expected := ComputeBalance(session.OpeningAmount, movements).Balance
		rec = Reconcile(countedAmount, expected, s.epsilon)

		now := time.Now()
		closingNotes := strings.TrimSpace(notes)

		// WHERE status = 'open' es la guarda contra el doble cierre: si otro
		// cierre ganó, no se afecta ninguna fila y no se re-arquea nada.
		res := tx.Model(&models.CashSession{}).
			Where("id = ? AND status = ?", session.ID, models.CashSessionOpen).
			Updates(map[string]interface{}{
				"status":          models.CashSessionClosed,
				"closed_at":       now,
				"closed_by_id":    scope.UserID,
				"counted_amount":  rec.CountedAmount,
				"expected_amount": rec.ExpectedAmount,
				"difference":      rec.Difference,
				"closing_notes":   closingNotes,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlreadyClosed()
		}

		session.Status = models.CashSessionClosed
		session.ClosedAt = &now
		session.ClosedByID = &scope.UserID
		session.CountedAmount = &rec.CountedAmount
		session.ExpectedAmount = &rec.ExpectedAmount
		session.Difference = &rec.Difference
		session.ClosingNotes = closingNotes
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.locks.forget(sessionID)
	sessionsClosed.WithLabelValues(string(rec.Classification)).Inc()
	return session, &rec, nil
}

// Get devuelve la sesión con su libro completo en orden de asiento.
func (s *Service) Get(scope Scope, sessionID uint) (*models.CashSession, []models.CashMovement, error) {
	session, err := s.loadSession(s.db, scope, sessionID)
	if err != nil {
		return nil, nil, err
	}
	movements, err := listMovements(s.db, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, movements, nil
}

// Summary deriva el saldo vivo de la sesión. Solo lecturas; se puede llamar
// concurrentemente sin tomar el lock de la sesión.
func (s *Service) Summary(scope Scope, sessionID uint) (*Summary, error) {
	session, err := s.loadSession(s.db, scope, sessionID)
	if err != nil {
		return nil, err
	}
	movements, err := listMovements(s.db, session.ID)
	if err != nil {
		return nil, err
	}
	summary := ComputeBalance(session.OpeningAmount, movements)
	return &summary, nil
}

// List devuelve las sesiones del tenant filtradas por sucursal, estado y
// fechas de apertura, de la más reciente a la más vieja.
func (s *Service) List(scope Scope, filter ListFilter) ([]models.CashSession, error) {
	q := s.db.Model(&models.CashSession{}).Where("tenant_id = ?", scope.TenantID)

	if scope.Role == models.RoleOperator {
		if scope.BranchID == nil {
			return nil, errAuthorization("el operador no tiene sucursal asignada")
		}
		if filter.BranchID != nil && *filter.BranchID != *scope.BranchID {
			return nil, errAuthorization("la sucursal no pertenece a tu alcance")
		}
		q = q.Where("branch_id = ?", *scope.BranchID)
	} else if filter.BranchID != nil {
		q = q.Where("branch_id = ?", *filter.BranchID)
	}

	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("opened_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("opened_at <= ?", *filter.To)
	}

	var sessions []models.CashSession
	if err := q.Order("opened_at desc, id desc").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// loadSession carga por id y después valida el alcance, para poder
// distinguir "no existe" de "no es tuya".
func (s *Service) loadSession(db *gorm.DB, scope Scope, sessionID uint) (*models.CashSession, error) {
	var session models.CashSession
	if err := db.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("session")
		}
		return nil, err
	}
	if session.TenantID != scope.TenantID {
		return nil, errAuthorization("la sesión no pertenece a tu comercio")
	}
	if !scope.canActOnBranch(session.BranchID) {
		return nil, errAuthorization("la sesión no pertenece a tu sucursal")
	}
	return &session, nil
}

func listMovements(db *gorm.DB, sessionID uint) ([]models.CashMovement, error) {
	var movements []models.CashMovement
	err := db.Where("cash_session_id = ?", sessionID).
		Order("id asc"). // orden de asiento = orden del libro
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
