package cashbox

import "sync"

// sessionLocks serializa record y close por sesión: o el movimiento entra
// estrictamente antes de la foto de saldo del cierre, o el cierre gana y el
// movimiento posterior falla con session_closed. Los lectores (saldo,
// resumen) no toman este lock.
type sessionLocks struct {
	locks sync.Map // sessionID → *sync.Mutex
}

func (l *sessionLocks) lock(sessionID uint) func() {
	v, _ := l.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// forget descarta el mutex de una sesión cerrada para que el mapa no crezca
// indefinidamente. Un lock posterior sobre el mismo id crea un mutex nuevo;
// es inocuo, todo intento de escritura tras el cierre falla por status.
func (l *sessionLocks) forget(sessionID uint) {
	l.locks.Delete(sessionID)
}
