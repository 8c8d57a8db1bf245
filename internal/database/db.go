package database

import (
	"comercio-backend/internal/config"
	"comercio-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	log := config.Logger()

	var err error
	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		// Traduce errores del driver (clave duplicada, etc.) a errores de gorm;
		// el servicio de caja depende de gorm.ErrDuplicatedKey para el conflicto
		// de apertura.
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("No se pudo conectar a la base de datos: %v", err)
	}

	if err := Migrate(DB); err != nil {
		log.Fatalf("Error de migración: %v", err)
	}

	log.Info("Conexión a la base de datos establecida. Migración completa.")
}

// Migrate corre AutoMigrate más las migraciones manuales. Separado de Init
// para poder usarse también sobre la base en memoria de los tests.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Tenant{},
		&models.Branch{},
		&models.User{},
		&models.CashSession{},
		&models.CashMovement{},
		&models.AuditLog{},
		&models.PriceList{},
		&models.CurrencyRate{},
	); err != nil {
		return err
	}

	// Exclusividad de apertura: a lo sumo una sesión con status = 'open' por
	// sucursal. Índice único parcial, no chequeo-y-escritura: dos aperturas
	// concurrentes nunca pueden entrar las dos.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_cash_sessions_open_per_branch
		ON cash_sessions (tenant_id, branch_id)
		WHERE status = 'open'
	`).Error; err != nil {
		return err
	}

	// Orden del libro: los movimientos se leen por sesión en orden de asiento
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_cash_movements_session_order
		ON cash_movements (cash_session_id, id)
	`).Error; err != nil {
		return err
	}

	return nil
}
