package cashbox

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"comercio-backend/internal/database"
	"comercio-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB abre una base sqlite en memoria con el mismo esquema (incluido el
// índice único parcial) que producción. Una sola conexión para que sqlite
// serialice a los escritores concurrentes del test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

type fixtures struct {
	tenant      models.Tenant
	otherTenant models.Tenant
	branch      models.Branch
	branch2     models.Branch
	admin       models.User
	operator    models.User
	stranger    models.User // usuario de otro tenant
}

func seed(t *testing.T, db *gorm.DB) fixtures {
	t.Helper()

	f := fixtures{
		tenant:      models.Tenant{Name: "Almacén Central"},
		otherTenant: models.Tenant{Name: "Otro Comercio"},
	}
	require.NoError(t, db.Create(&f.tenant).Error)
	require.NoError(t, db.Create(&f.otherTenant).Error)

	f.branch = models.Branch{TenantID: f.tenant.ID, Name: "Sucursal Centro"}
	f.branch2 = models.Branch{TenantID: f.tenant.ID, Name: "Sucursal Norte"}
	require.NoError(t, db.Create(&f.branch).Error)
	require.NoError(t, db.Create(&f.branch2).Error)

	f.admin = models.User{TenantID: f.tenant.ID, Name: "Ana", Email: "ana@test.local", PasswordHash: "x", Role: models.RoleAdmin}
	require.NoError(t, db.Create(&f.admin).Error)

	f.operator = models.User{TenantID: f.tenant.ID, BranchID: &f.branch.ID, Name: "Omar", Email: "omar@test.local", PasswordHash: "x", Role: models.RoleOperator}
	require.NoError(t, db.Create(&f.operator).Error)

	f.stranger = models.User{TenantID: f.otherTenant.ID, Name: "Eva", Email: "eva@test.local", PasswordHash: "x", Role: models.RoleAdmin}
	require.NoError(t, db.Create(&f.stranger).Error)

	return f
}

func newTestService(t *testing.T) (*Service, *gorm.DB, fixtures) {
	db := newTestDB(t)
	f := seed(t, db)
	return NewService(db, dec("0.01")), db, f
}

func adminScope(f fixtures) Scope {
	return Scope{TenantID: f.tenant.ID, UserID: f.admin.ID, Role: models.RoleAdmin}
}

func operatorScope(f fixtures) Scope {
	return Scope{TenantID: f.tenant.ID, UserID: f.operator.ID, Role: models.RoleOperator, BranchID: f.operator.BranchID}
}

func strangerScope(f fixtures) Scope {
	return Scope{TenantID: f.stranger.TenantID, UserID: f.stranger.ID, Role: models.RoleAdmin}
}

func kindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// ----------------------------------------
// Open
// ----------------------------------------

func TestOpenSession(t *testing.T) {
	svc, _, f := newTestService(t)

	session, err := svc.Open(operatorScope(f), f.branch.ID, dec("1000.00"), "fondo inicial")
	require.NoError(t, err)

	assert.Equal(t, models.CashSessionOpen, session.Status)
	assert.Equal(t, f.branch.ID, session.BranchID)
	assert.Equal(t, f.operator.ID, session.OpenedByID)
	assert.True(t, session.OpeningAmount.Equal(dec("1000.00")))
	assert.Equal(t, "fondo inicial", session.OpeningNotes)
	assert.Nil(t, session.ClosedAt)
	assert.Nil(t, session.CountedAmount)
	assert.Nil(t, session.ExpectedAmount)
	assert.Nil(t, session.Difference)
}

func TestOpenSessionNegativeAmount(t *testing.T) {
	svc, _, f := newTestService(t)

	_, err := svc.Open(operatorScope(f), f.branch.ID, dec("-1.00"), "")
	assert.Equal(t, KindValidation, kindOf(err))
}

func TestOpenSessionZeroAmountAllowed(t *testing.T) {
	svc, _, f := newTestService(t)

	session, err := svc.Open(operatorScope(f), f.branch.ID, decimal.Zero, "")
	require.NoError(t, err)
	assert.True(t, session.OpeningAmount.IsZero())
}

func TestOpenSessionConflict(t *testing.T) {
	svc, db, f := newTestService(t)

	first, err := svc.Open(operatorScope(f), f.branch.ID, dec("1000.00"), "")
	require.NoError(t, err)

	_, err = svc.Open(adminScope(f), f.branch.ID, dec("100.00"), "")
	assert.Equal(t, KindConflict, kindOf(err))

	// la sesión preexistente queda intacta
	var stored models.CashSession
	require.NoError(t, db.First(&stored, first.ID).Error)
	assert.Equal(t, models.CashSessionOpen, stored.Status)
	assert.True(t, stored.OpeningAmount.Equal(dec("1000.00")))

	// otra sucursal sí puede abrir
	_, err = svc.Open(adminScope(f), f.branch2.ID, dec("500.00"), "")
	assert.NoError(t, err)
}

func TestOpenSessionAfterCloseReopens(t *testing.T) {
	svc, _, f := newTestService(t)

	session, err := svc.Open(operatorScope(f), f.branch.ID, dec("100.00"), "")
	require.NoError(t, err)
	_, _, err = svc.Close(operatorScope(f), session.ID, dec("100.00"), "")
	require.NoError(t, err)

	// cerrada la anterior, la sucursal puede abrir una caja nueva
	_, err = svc.Open(operatorScope(f), f.branch.ID, dec("200.00"), "")
	assert.NoError(t, err)
}

func TestOpenSessionBranchNotFound(t *testing.T) {
	svc, _, f := newTestService(t)

	_, err := svc.Open(adminScope(f), 9999, dec("100.00"), "")
	assert.Equal(t, KindNotFound, kindOf(err))
}

func TestOpenSessionOperatorWrongBranch(t *testing.T) {
	svc, _, f := newTestService(t)

	_, err := svc.Open(operatorScope(f), f.branch2.ID, dec("100.00"), "")
	assert.Equal(t, KindAuthorization, kindOf(err))
}

func TestOpenSessionConcurrent(t *testing.T) {
	svc, db, f := newTestService(t)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Open(adminScope(f), f.branch.ID, dec("100.00"), "")
		}(i)
	}
	wg.Wait()

	var oks, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			oks++
		case kindOf(err) == KindConflict:
			conflicts++
		default:
			t.Fatalf("error inesperado: %v", err)
		}
	}
	assert.Equal(t, 1, oks, "solo una apertura puede entrar")
	assert.Equal(t, attempts-1, conflicts)

	var open int64
	db.Model(&models.CashSession{}).
		Where("branch_id = ? AND status = ?", f.branch.ID, models.CashSessionOpen).
		Count(&open)
	assert.EqualValues(t, 1, open)
}

// ----------------------------------------
// Record + Summary
// ----------------------------------------

func TestRecordAndSummary(t *testing.T) {
	svc, _, f := newTestService(t)
	scope := operatorScope(f)

	session, err := svc.Open(scope, f.branch.ID, dec("1000.00"), "")
	require.NoError(t, err)

	first, err := svc.Record(scope, session.ID, RecordInput{Type: models.MovementIncome, Amount: dec("500.00"), Concept: "venta mostrador"})
	require.NoError(t, err)
	// el movimiento queda etiquetado con la sucursal de su sesión
	assert.Equal(t, f.branch.ID, first.BranchID)
	_, err = svc.Record(scope, session.ID, RecordInput{Type: models.MovementIncome, Amount: dec("300.00"), Concept: "cobro pedido"})
	require.NoError(t, err)
	_, err = svc.Record(scope, session.ID, RecordInput{Type: models.MovementExpense, Amount: dec("200.00"), Concept: "pago proveedor"})
	require.NoError(t, err)

	summary, err := svc.Summary(scope, session.ID)
	require.NoError(t, err)

	assert.True(t, summary.Balance.Equal(dec("1600.00")), "balance = %s", summary.Balance)
	assert.True(t, summary.TotalIncome.Equal(dec("800.00")))
	assert.True(t, summary.TotalExpense.Equal(dec("200.00")))
	assert.Equal(t, 2, summary.CountIncome)
	assert.Equal(t, 1, summary.CountExpense)
}

func TestRecordValidation(t *testing.T) {
	svc, _, f := newTestService(t)
	scope := operatorScope(f)

	session, err := svc.Open(scope, f.branch.ID, dec("100.00"), "")
	require.NoError(t, err)

	cases := []struct {
		name  string
		in    RecordInput
		field string
	}{
		{"monto cero", RecordInput{Type: models.MovementIncome, Amount: decimal.Zero, Concept: "x"}, "amount"},
		{"monto negativo", RecordInput{Type: models.MovementIncome, Amount: dec("-5.00"), Concept: "x"}, "amount"},
		{"concepto vacío", RecordInput{Type: models.MovementIncome, Amount: dec("5.00"), Concept: "   "}, "concept"},
		{"tipo inválido", RecordInput{Type: "transfer", Amount: dec("5.00"), Concept: "x"}, "type"},
	}
	for _, tc := range cases {
		_, err := svc.Record(scope, session.ID, tc.in)
		var de *Error
		require.ErrorAs(t, err, &de, tc.name)
		assert.Equal(t, KindValidation, de.Kind, tc.name)
		assert.Equal(t, tc.field, de.Field, tc.name)
	}
}

func TestRecordSessionNotFound(t *testing.T) {
	svc, _, f := newTestService(t)

	_, err := svc.Record(operatorScope(f), 9999, RecordInput{Type: models.MovementIncome, Amount: dec("5.00"), Concept: "x"})
	assert.Equal(t, KindNotFound, kindOf(err))
}

func TestRecordOnClosedSession(t *testing.T) {
	svc, db, f := newTestService(t)
	scope := operatorScope(f)

	session, err := svc.Open(scope, f.branch.ID, dec("100.00"), "")
	require.NoError(t, err)
	_, _, err = svc.Close(scope, session.ID, dec("100.00"), "")
	require.NoError(t, err)

	_, err = svc.Record(scope, session.ID, RecordInput{Type: models.MovementIncome, Amount: dec("10.00"), Concept: "tarde"})
	assert.Equal(t, KindSessionClosed, kindOf(err))

	// no se creó ningún movimiento
	var count int64
	db.Model(&models.CashMovement{}).Where("cash_session_id = ?", session.ID).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestRecordTenantMismatch(t *testing.T) {
	svc, _, f := newTestService(t)

	session, err := svc.Open(operatorScope(f), f.branch.ID, dec("100.00"), "")
	require.NoError(t, err)

	_, err = svc.Record(strangerScope(f), session.ID, RecordInput{Type: models.MovementIncome, Amount: dec("5.00"), Concept: "x"})
	assert.Equal(t, KindAuthorization, kindOf(err))
}

func TestRecordOperatorOtherBranch(t *testing.T) {
	svc, _, f := newTestService(t)

	session, err := svc.Open(adminScope(f), f.branch2.ID, dec("100.00"), "")
	require.NoError(t, err)

	// el operador de Centro no puede asentar en la caja de Norte
	_, err = svc.Record(operatorScope(f), session.ID, RecordInput{Type: models.MovementIncome, Amount: dec("5.00"), Concept: "x"})
	assert.Equal(t, KindAuthorization, kindOf(err))
}

// ----------------------------------------
// Close
// ----------------------------------------

func openWithMovements(t *testing.T, svc *Service, scope Scope, branchID uint) *models.CashSession {
	t.Helper()
	session, err := svc.Open(scope, branchID, dec("1000.00"), "")
	require.NoError(t, err)
	for _, in := range []RecordInput{
		{Type: models.MovementIncome, Amount: dec("500.00"), Concept: "venta"},
		{Type: models.MovementIncome, Amount: dec("300.00"), Concept: "venta"},
		{Type: models.MovementExpense, Amount: dec("200.00"), Concept: "pago"},
	} {
		_, err := svc.Record(scope, session.ID, in)
		require.NoError(t, err)
	}
	return session
}

func TestCloseBalanced(t *testing.T) {
	svc, _, f := newTestService(t)
	scope := operatorScope(f)
	session := openWithMovements(t, svc, scope, f.branch.ID)

	closed, rec, err := svc.Close(scope, session.ID, dec("1600.00"), "cierre turno tarde")
	require.NoError(t, err)

	assert.Equal(t, Balanced, rec.Classification)
	assert.True(t, rec.Difference.IsZero(), "difference = %s", rec.Difference)
	assert.True(t, rec.ExpectedAmount.Equal(dec("1600.00")))

	assert.Equal(t, models.CashSessionClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	require.NotNil(t, closed.CountedAmount)
	require.NotNil(t, closed.ExpectedAmount)
	require.NotNil(t, closed.Difference)
	assert.True(t, closed.CountedAmount.Equal(dec("1600.00")))
	assert.True(t, closed.ExpectedAmount.Equal(dec("1600.00")))
	assert.True(t, closed.Difference.IsZero())
	assert.Equal(t, "cierre turno tarde", closed.ClosingNotes)
	require.NotNil(t, closed.ClosedByID)
	assert.Equal(t, f.operator.ID, *closed.ClosedByID)
}

func TestCloseShortfall(t *testing.T) {
	svc, _, f := newTestService(t)
	scope := operatorScope(f)
	session := openWithMovements(t, svc, scope, f.branch.ID)

	_, rec, err := svc.Close(scope, session.ID, dec("1550.00"), "")
	require.NoError(t, err)

	assert.Equal(t, Shortfall, rec.Classification)
	assert.True(t, rec.Difference.Equal(dec("-50.00")), "difference = %s", rec.Difference)
}

func TestCloseSurplus(t *testing.T) {
	svc, _, f := newTestService(t)
	scope := operatorScope(f)
	session := openWithMovements(t, svc, scope, f.branch.ID)

	_, rec, err := svc.Close(scope, session.ID, dec("1650.00"), "")
	require.NoError(t, err)

	assert.Equal(t, Surplus, rec.Classification)
	assert.True(t, rec.Difference.Equal(dec("50.00")), "difference = %s", rec.Difference)
}

func TestCloseTwiceFails(t *testing.T) {
	svc, db, f := newTestService(t)
	scope := operatorScope(f)
	session := openWithMovements(t, svc, scope, f.branch.ID)

	_, _, err := svc.Close(scope, session.ID, dec("1600.00"), "")
	require.NoError(t, err)

	// el segundo cierre falla y no re-arquea
	_, _, err = svc.Close(scope, session.ID, dec("9999.00"), "")
	assert.Equal(t, KindAlreadyClosed, kindOf(err))

	var stored models.CashSession
	require.NoError(t, db.First(&stored, session.ID).Error)
	require.NotNil(t, stored.CountedAmount)
	assert.True(t, stored.CountedAmount.Equal(dec("1600.00")), "los números del primer cierre no cambian")
	assert.True(t, stored.Difference.IsZero())
}

func TestCloseNegativeCounted(t *testing.T) {
	svc, _, f := newTestService(t)
	scope := operatorScope(f)
	session := openWithMovements(t, svc, scope, f.branch.ID)

	_, _, err := svc.Close(scope, session.ID, dec("-1.00"), "")
	assert.Equal(t, KindValidation, kindOf(err))
}

func TestCloseEvictsSessionLock(t *testing.T) {
	svc, _, f := newTestService(t)
	scope := operatorScope(f)

	session, err := svc.Open(scope, f.branch.ID, dec("100.00"), "")
	require.NoError(t, err)
	_, err = svc.Record(scope, session.ID, RecordInput{Type: models.MovementIncome, Amount: dec("10.00"), Concept: "venta"})
	require.NoError(t, err)

	_, ok := svc.locks.locks.Load(session.ID)
	assert.True(t, ok, "la sesión viva tiene su mutex en el mapa")

	_, _, err = svc.Close(scope, session.ID, dec("110.00"), "")
	require.NoError(t, err)

	// cerrada la sesión, su entrada se descarta; el mapa no crece sin límite
	_, ok = svc.locks.locks.Load(session.ID)
	assert.False(t, ok)
}

func TestCloseNotFound(t *testing.T) {
	svc, _, f := newTestService(t)

	_, _, err := svc.Close(adminScope(f), 9999, dec("0.00"), "")
	assert.Equal(t, KindNotFound, kindOf(err))
}

// El cierre y los asientos concurrentes nunca pierden plata: todo movimiento
// que entró participa del esperado, y el que llega después del cierre falla.
func TestCloseRecordRace(t *testing.T) {
	svc, db, f := newTestService(t)
	scope := operatorScope(f)

	session, err := svc.Open(scope, f.branch.ID, dec("1000.00"), "")
	require.NoError(t, err)

	const recorders = 20
	var wg sync.WaitGroup
	for i := 0; i < recorders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Record(scope, session.ID, RecordInput{
				Type: models.MovementIncome, Amount: dec("10.00"), Concept: "venta",
			})
			if err != nil {
				// la única falla admisible es que la caja ya esté cerrada
				assert.Equal(t, KindSessionClosed, kindOf(err))
			}
		}()
	}

	wg.Add(1)
	var rec *Reconciliation
	var closeErr error
	go func() {
		defer wg.Done()
		_, rec, closeErr = svc.Close(scope, session.ID, dec("1000.00"), "")
	}()
	wg.Wait()
	require.NoError(t, closeErr)
	require.NotNil(t, rec)

	// el esperado del cierre refleja exactamente los movimientos asentados
	var movements []models.CashMovement
	require.NoError(t, db.Where("cash_session_id = ?", session.ID).Find(&movements).Error)
	expected := ComputeBalance(dec("1000.00"), movements).Balance
	assert.True(t, rec.ExpectedAmount.Equal(expected),
		"esperado %s vs libro %s", rec.ExpectedAmount, expected)

	// y ningún movimiento quedó asentado después del cierre
	var stored models.CashSession
	require.NoError(t, db.First(&stored, session.ID).Error)
	require.NotNil(t, stored.ClosedAt)
	for _, m := range movements {
		assert.False(t, m.RecordedAt.After(*stored.ClosedAt),
			"movimiento %d asentado después del cierre", m.ID)
	}
}

// ----------------------------------------
// Get + List
// ----------------------------------------

func TestGetSessionWithLedger(t *testing.T) {
	svc, _, f := newTestService(t)
	scope := operatorScope(f)
	session := openWithMovements(t, svc, scope, f.branch.ID)

	stored, movements, err := svc.Get(scope, session.ID)
	require.NoError(t, err)

	assert.Equal(t, session.ID, stored.ID)
	require.Len(t, movements, 3)
	// orden del libro = orden de asiento
	assert.True(t, movements[0].Amount.Equal(dec("500.00")))
	assert.True(t, movements[1].Amount.Equal(dec("300.00")))
	assert.True(t, movements[2].Amount.Equal(dec("200.00")))
}

func TestGetSessionTenantMismatch(t *testing.T) {
	svc, _, f := newTestService(t)

	session, err := svc.Open(operatorScope(f), f.branch.ID, dec("100.00"), "")
	require.NoError(t, err)

	_, _, err = svc.Get(strangerScope(f), session.ID)
	assert.Equal(t, KindAuthorization, kindOf(err))
}

func TestListSessionsFilters(t *testing.T) {
	svc, _, f := newTestService(t)
	admin := adminScope(f)

	s1, err := svc.Open(admin, f.branch.ID, dec("100.00"), "")
	require.NoError(t, err)
	_, _, err = svc.Close(admin, s1.ID, dec("100.00"), "")
	require.NoError(t, err)

	_, err = svc.Open(admin, f.branch.ID, dec("200.00"), "")
	require.NoError(t, err)
	_, err = svc.Open(admin, f.branch2.ID, dec("300.00"), "")
	require.NoError(t, err)

	all, err := svc.List(admin, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	open := models.CashSessionOpen
	onlyOpen, err := svc.List(admin, ListFilter{Status: open})
	require.NoError(t, err)
	assert.Len(t, onlyOpen, 2)

	branchOnly, err := svc.List(admin, ListFilter{BranchID: &f.branch.ID})
	require.NoError(t, err)
	assert.Len(t, branchOnly, 2)
}

func TestListSessionsDateFilters(t *testing.T) {
	svc, db, f := newTestService(t)
	admin := adminScope(f)

	sA, err := svc.Open(admin, f.branch.ID, dec("100.00"), "")
	require.NoError(t, err)
	_, _, err = svc.Close(admin, sA.ID, dec("100.00"), "")
	require.NoError(t, err)
	sB, err := svc.Open(admin, f.branch.ID, dec("200.00"), "")
	require.NoError(t, err)
	sC, err := svc.Open(admin, f.branch2.ID, dec("300.00"), "")
	require.NoError(t, err)

	// fechas de apertura controladas; sB cae tarde en su día para verificar
	// que el filtro 'to' incluye el día completo
	setOpenedAt := func(id uint, ts time.Time) {
		require.NoError(t, db.Model(&models.CashSession{}).Where("id = ?", id).
			Update("opened_at", ts).Error)
	}
	setOpenedAt(sA.ID, time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	setOpenedAt(sB.ID, time.Date(2026, 1, 20, 18, 30, 0, 0, time.UTC))
	setOpenedAt(sC.ID, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))

	from := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	// mismo recorte que el handler: 'to' inclusivo hasta el final del día
	to := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1).Add(-time.Second)

	got, err := svc.List(admin, ListFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = svc.List(admin, ListFilter{To: &to})
	require.NoError(t, err)
	require.Len(t, got, 2, "sB abrió a las 18:30 del día límite y tiene que entrar")

	got, err = svc.List(admin, ListFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sB.ID, got[0].ID)
}

func TestListSessionsOperatorScopedToOwnBranch(t *testing.T) {
	svc, _, f := newTestService(t)
	admin := adminScope(f)

	_, err := svc.Open(admin, f.branch.ID, dec("100.00"), "")
	require.NoError(t, err)
	_, err = svc.Open(admin, f.branch2.ID, dec("200.00"), "")
	require.NoError(t, err)

	sessions, err := svc.List(operatorScope(f), ListFilter{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, f.branch.ID, sessions[0].BranchID)

	// pedir explícitamente otra sucursal es un error de alcance
	_, err = svc.List(operatorScope(f), ListFilter{BranchID: &f.branch2.ID})
	assert.Equal(t, KindAuthorization, kindOf(err))
}

func TestListSessionsIsolatedByTenant(t *testing.T) {
	svc, _, f := newTestService(t)

	_, err := svc.Open(adminScope(f), f.branch.ID, dec("100.00"), "")
	require.NoError(t, err)

	sessions, err := svc.List(strangerScope(f), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
