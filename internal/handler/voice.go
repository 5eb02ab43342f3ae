package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/voicecraft/speech-backend/internal/tts"
)

// VoiceHandler serves the cached provider voice catalogue.
type VoiceHandler struct {
	Catalog tts.Synthesizer
	Log     zerolog.Logger
}

func NewVoiceHandler(catalog tts.Synthesizer, log zerolog.Logger) *VoiceHandler {
	return &VoiceHandler{Catalog: catalog, Log: log.With().Str("component", "voice-handler").Logger()}
}

// Voices lists voices, filtered by the ?language query param or, failing
// that, the accept-language header.
func (h *VoiceHandler) Voices(c echo.Context) error {
	language := c.QueryParam("language")
	if language == "" {
		language = preferredLanguage(c)
	}
	voices, err := h.Catalog.Voices(c.Request().Context(), language)
	if err != nil {
		h.Log.Error().Err(err).Str("language", language).Msg("voice catalogue fetch failed")
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "voice catalogue unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"voices": voices})
}
