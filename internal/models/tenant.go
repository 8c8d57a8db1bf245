package models

import "time"

// Tenant: límite de aislamiento por encima de la sucursal. Todas las
// operaciones llevan el tenant del token, nunca de estado global.
type Tenant struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;not null;unique"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
