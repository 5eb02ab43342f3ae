package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/voicecraft/speech-backend/internal/auth"
)

// ErrorBody is the uniform error envelope every denial and failure uses.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// RespondError writes an auth error using its fixed status, stable code and
// sanitized message.
func RespondError(c echo.Context, ae *auth.Error) error {
	return c.JSON(ae.Status(), ErrorBody{
		StatusCode: ae.Status(),
		Code:       ae.Code(),
		Message:    ae.PublicMessage(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}
