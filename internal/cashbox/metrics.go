package cashbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cashbox_sessions_opened_total",
		Help: "Cajas abiertas.",
	})
	sessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashbox_sessions_closed_total",
		Help: "Cajas cerradas, por clasificación del arqueo.",
	}, []string{"classification"})
	movementsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashbox_movements_recorded_total",
		Help: "Movimientos asentados, por tipo.",
	}, []string{"type"})
)
