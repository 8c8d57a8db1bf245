package cashbox

import "fmt"

// Kind clasifica los resultados esperados del dominio. Cualquier otro error
// que salga del servicio es de infraestructura (base de datos caída, etc.) y
// se propaga tal cual, sin disfrazarse de error de dominio.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindSessionClosed Kind = "session_closed"
	KindAlreadyClosed Kind = "already_closed"
	KindAuthorization Kind = "authorization"
)

type Error struct {
	Kind    Kind
	Field   string // campo ofensivo, si aplica
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func errValidation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

func errNotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Field: entity, Message: "no existe"}
}

func errConflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func errSessionClosed() *Error {
	return &Error{Kind: KindSessionClosed, Message: "la caja ya está cerrada; no se pueden asentar movimientos"}
}

func errAlreadyClosed() *Error {
	return &Error{Kind: KindAlreadyClosed, Message: "la caja ya fue cerrada; el cierre es definitivo"}
}

func errAuthorization(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

// HTTPStatus mapea el taxón de error a un código HTTP. Los handlers y el
// ErrorHandler central de fiber usan esto para responder.
func HTTPStatus(e *Error) int {
	switch e.Kind {
	case KindValidation:
		return 422
	case KindNotFound:
		return 404
	case KindConflict, KindSessionClosed, KindAlreadyClosed:
		return 409
	case KindAuthorization:
		return 403
	default:
		return 500
	}
}
