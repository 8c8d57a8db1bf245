package models

import "time"

type Branch struct {
	ID        uint `gorm:"primaryKey"`
	TenantID  uint `gorm:"index;not null"`
	Tenant    Tenant
	Name      string `gorm:"size:100;not null"`
	Address   string `gorm:"size:255"`
	Phone     string `gorm:"size:50"` // Teléfono opcional
	CreatedAt time.Time
	UpdatedAt time.Time

	Users []User
}
