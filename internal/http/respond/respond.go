package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// User-facing messages. The app serves Spanish-speaking neighbors.
const (
	MsgInvalidToken        = "Token inválido o expirado"
	MsgInvalidJSON         = "Cuerpo de la solicitud inválido"
	MsgEmailTaken          = "El correo ya está registrado"
	MsgBadCredentials      = "Correo o contraseña incorrecta"
	MsgIdentityMismatch    = "El DNI no pudo ser verificado"
	MsgIdentityUnavailable = "El servicio de verificación de identidad no está disponible"
	MsgSaveFailed          = "No se pudo guardar el mensaje"
	MsgLoadFailed          = "No se pudieron cargar los mensajes"
	MsgGeneratorDown       = "El asistente no está disponible"
	MsgGeneratorFailed     = "El asistente no pudo generar una respuesta"
	MsgInternal            = "Error interno del servidor"
)

// Envelope is the standard API response wrapper used across handlers.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON writes a success or informational response using the common envelope.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Code: status, Message: message, Data: data})
}

// Error writes an error response with the shared envelope structure.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Code: status, Message: message})
}

func write(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("respond: encode payload failed", "error", err)
	}
}
