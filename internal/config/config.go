package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string
	// Tolerancia de redondeo del arqueo (la menor unidad de la moneda).
	// No es una tolerancia para faltantes reales.
	ReconcileEpsilon decimal.Decimal
	LogLevel         string
}

const defaultDSN = "host=localhost user=postgres password=postgres dbname=comercio port=5432 sslmode=disable"

func Load() *Config {
	// .env solo existe en desarrollo; si no está, seguimos con el entorno
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseDSN: getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	eps, err := decimal.NewFromString(getEnv("RECONCILE_EPSILON", "0.01"))
	if err != nil || eps.IsNegative() {
		Logger().Fatalf("RECONCILE_EPSILON inválido: %v", os.Getenv("RECONCILE_EPSILON"))
	}
	cfg.ReconcileEpsilon = eps

	// Controles de seguridad para producción
	if cfg.JWTSecret == "" {
		Logger().Fatal("JWT_SECRET no está definido; es obligatorio")
	}
	if len(cfg.JWTSecret) < 32 {
		Logger().Fatal("JWT_SECRET debe tener al menos 32 caracteres")
	}
	if cfg.DatabaseDSN == defaultDSN {
		Logger().Warn("DATABASE_DSN usa el valor por defecto; definí tu propia conexión para producción")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
