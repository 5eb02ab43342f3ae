package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/voicecraft/speech-backend/internal/metrics"
	"github.com/voicecraft/speech-backend/internal/middleware"
	"github.com/voicecraft/speech-backend/internal/model"
	"github.com/voicecraft/speech-backend/internal/queue"
	"github.com/voicecraft/speech-backend/internal/repository"
	"github.com/voicecraft/speech-backend/internal/storage"
	"github.com/voicecraft/speech-backend/internal/tts"
)

// SpeechStore is the persistence surface the speech handler drives. The
// MySQL repository implements it; tests substitute an in-memory one.
type SpeechStore interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.Speech, error)
	Create(ctx context.Context, userID uint64, title string) (*model.Speech, error)
	Get(ctx context.Context, userID uint64, id string) (*model.Speech, error)
	Rename(ctx context.Context, userID uint64, id, title string) error
	Delete(ctx context.Context, userID uint64, id string) error
	ListBlocks(ctx context.Context, userID uint64, speechID string) ([]model.SpeechBlock, error)
	AddBlock(ctx context.Context, userID uint64, speechID, text, voiceID string) (*model.SpeechBlock, error)
	GetBlock(ctx context.Context, userID uint64, speechID, blockID string) (*model.SpeechBlock, error)
	UpdateBlock(ctx context.Context, userID uint64, speechID, blockID string, text, voiceID *string) error
	SetBlockAudio(ctx context.Context, blockID, audioURL string) error
	DeleteBlock(ctx context.Context, userID uint64, speechID, blockID string) error
	ReorderBlocks(ctx context.Context, userID uint64, speechID string, blockIDs []string) error
	RefreshStatus(ctx context.Context, userID uint64, speechID string) (string, error)
}

// UsageRecorder tracks per-user synthesized character counts.
type UsageRecorder interface {
	AddSynthesizedChars(ctx context.Context, id uint64, chars int) error
}

// EventPublisher emits domain events to the broker.
type EventPublisher interface {
	PublishSpeechSynthesized(ctx context.Context, event queue.SpeechSynthesizedEvent) error
}

// SpeechHandler serves the speech and block CRUD plus synthesis.
type SpeechHandler struct {
	Speeches  SpeechStore
	Users     UsageRecorder
	Synth     tts.Synthesizer
	Store     storage.Store
	Publisher EventPublisher
	Rec       metrics.Recorder
	Log       zerolog.Logger
}

func NewSpeechHandler(speeches SpeechStore, users UsageRecorder, synth tts.Synthesizer, store storage.Store, publisher EventPublisher, rec metrics.Recorder, log zerolog.Logger) *SpeechHandler {
	return &SpeechHandler{
		Speeches:  speeches,
		Users:     users,
		Synth:     synth,
		Store:     store,
		Publisher: publisher,
		Rec:       rec,
		Log:       log.With().Str("component", "speech-handler").Logger(),
	}
}

// ----- DTOs -----

type createSpeechReq struct {
	Title  string `json:"title"`
	Blocks []struct {
		Text    string `json:"text"`
		VoiceID string `json:"voiceId"`
	} `json:"blocks"`
}

type renameSpeechReq struct {
	Title string `json:"title"`
}

type blockReq struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
}

type patchBlockReq struct {
	Text    *string `json:"text"`
	VoiceID *string `json:"voiceId"`
}

type reorderBlocksReq struct {
	BlockIDs []string `json:"blockIds"`
}

type speechResp struct {
	Speech *model.Speech       `json:"speech"`
	Blocks []model.SpeechBlock `json:"blocks"`
}

// List returns the caller's speeches, newest first.
func (h *SpeechHandler) List(c echo.Context) error {
	user := middleware.UserFrom(c)
	speeches, err := h.Speeches.ListByUser(c.Request().Context(), user.ID)
	if err != nil {
		return h.fail(c, err, "list speeches")
	}
	return c.JSON(http.StatusOK, echo.Map{"speeches": speeches})
}

// Create makes a speech, optionally pre-populated with blocks.
func (h *SpeechHandler) Create(c echo.Context) error {
	user := middleware.UserFrom(c)
	var req createSpeechReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}

	ctx := c.Request().Context()
	speech, err := h.Speeches.Create(ctx, user.ID, req.Title)
	if err != nil {
		return h.fail(c, err, "create speech")
	}
	blocks := []model.SpeechBlock{}
	for _, b := range req.Blocks {
		if b.Text == "" {
			continue
		}
		block, err := h.Speeches.AddBlock(ctx, user.ID, speech.ID, b.Text, b.VoiceID)
		if err != nil {
			return h.fail(c, err, "add block")
		}
		blocks = append(blocks, *block)
	}
	return c.JSON(http.StatusCreated, speechResp{Speech: speech, Blocks: blocks})
}

// Get returns one speech with its blocks in order.
func (h *SpeechHandler) Get(c echo.Context) error {
	user := middleware.UserFrom(c)
	ctx := c.Request().Context()

	speech, err := h.Speeches.Get(ctx, user.ID, c.Param("id"))
	if err != nil {
		return h.fail(c, err, "get speech")
	}
	blocks, err := h.Speeches.ListBlocks(ctx, user.ID, speech.ID)
	if err != nil {
		return h.fail(c, err, "list blocks")
	}
	return c.JSON(http.StatusOK, speechResp{Speech: speech, Blocks: blocks})
}

// Rename updates the title.
func (h *SpeechHandler) Rename(c echo.Context) error {
	user := middleware.UserFrom(c)
	var req renameSpeechReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}
	if err := h.Speeches.Rename(c.Request().Context(), user.ID, c.Param("id"), req.Title); err != nil {
		return h.fail(c, err, "rename speech")
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete removes a speech, its blocks (FK cascade) and their stored audio.
// Audio cleanup is best-effort; orphaned files are not worth a failed
// delete.
func (h *SpeechHandler) Delete(c echo.Context) error {
	user := middleware.UserFrom(c)
	ctx := c.Request().Context()
	id := c.Param("id")

	blocks, err := h.Speeches.ListBlocks(ctx, user.ID, id)
	if err != nil {
		return h.fail(c, err, "list blocks")
	}
	if err := h.Speeches.Delete(ctx, user.ID, id); err != nil {
		return h.fail(c, err, "delete speech")
	}
	for _, b := range blocks {
		h.removeAudio(ctx, b.AudioURL)
	}
	return c.NoContent(http.StatusNoContent)
}

// AddBlock appends a block to a speech.
func (h *SpeechHandler) AddBlock(c echo.Context) error {
	user := middleware.UserFrom(c)
	var req blockReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "text is required"})
	}
	ctx := c.Request().Context()
	block, err := h.Speeches.AddBlock(ctx, user.ID, c.Param("id"), req.Text, req.VoiceID)
	if err != nil {
		return h.fail(c, err, "add block")
	}
	h.refreshStatus(ctx, user.ID, block.SpeechID)
	return c.JSON(http.StatusCreated, echo.Map{"block": block})
}

// ReorderBlocks applies a client-supplied block order. The submitted ids
// must be exactly the speech's block set or nothing changes.
func (h *SpeechHandler) ReorderBlocks(c echo.Context) error {
	user := middleware.UserFrom(c)
	var req reorderBlocksReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if len(req.BlockIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "blockIds is required"})
	}

	ctx := c.Request().Context()
	id := c.Param("id")
	if err := h.Speeches.ReorderBlocks(ctx, user.ID, id, req.BlockIDs); err != nil {
		return h.fail(c, err, "reorder blocks")
	}
	blocks, err := h.Speeches.ListBlocks(ctx, user.ID, id)
	if err != nil {
		return h.fail(c, err, "list blocks")
	}
	return c.JSON(http.StatusOK, echo.Map{"blocks": blocks})
}

// UpdateBlock edits a block's text and/or voice, dropping any stale audio.
func (h *SpeechHandler) UpdateBlock(c echo.Context) error {
	user := middleware.UserFrom(c)
	var req patchBlockReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Text == nil && req.VoiceID == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nothing to update"})
	}
	if req.Text != nil && *req.Text == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "text cannot be empty"})
	}

	ctx := c.Request().Context()
	prev, err := h.Speeches.GetBlock(ctx, user.ID, c.Param("id"), c.Param("blockID"))
	if err != nil {
		return h.fail(c, err, "get block")
	}
	if err := h.Speeches.UpdateBlock(ctx, user.ID, prev.SpeechID, prev.ID, req.Text, req.VoiceID); err != nil {
		return h.fail(c, err, "update block")
	}
	h.removeAudio(ctx, prev.AudioURL)
	h.refreshStatus(ctx, user.ID, prev.SpeechID)

	block, err := h.Speeches.GetBlock(ctx, user.ID, prev.SpeechID, prev.ID)
	if err != nil {
		return h.fail(c, err, "get block")
	}
	return c.JSON(http.StatusOK, echo.Map{"block": block})
}

// DeleteBlock removes one block and its audio.
func (h *SpeechHandler) DeleteBlock(c echo.Context) error {
	user := middleware.UserFrom(c)
	ctx := c.Request().Context()

	block, err := h.Speeches.GetBlock(ctx, user.ID, c.Param("id"), c.Param("blockID"))
	if err != nil {
		return h.fail(c, err, "get block")
	}
	if err := h.Speeches.DeleteBlock(ctx, user.ID, block.SpeechID, block.ID); err != nil {
		return h.fail(c, err, "delete block")
	}
	h.removeAudio(ctx, block.AudioURL)
	h.refreshStatus(ctx, user.ID, block.SpeechID)
	return c.NoContent(http.StatusNoContent)
}

// Synthesize renders a block's text with its voice, stores the audio,
// records usage and publishes the synthesized event. A broker failure does
// not fail the request.
func (h *SpeechHandler) Synthesize(c echo.Context) error {
	user := middleware.UserFrom(c)
	ctx := c.Request().Context()

	block, err := h.Speeches.GetBlock(ctx, user.ID, c.Param("id"), c.Param("blockID"))
	if err != nil {
		return h.fail(c, err, "get block")
	}
	if block.Text == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "block has no text"})
	}
	if block.VoiceID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "block has no voice"})
	}

	audio, err := h.Synth.Synthesize(ctx, block.Text, block.VoiceID)
	if err != nil {
		h.Log.Error().Err(err).Str("block_id", block.ID).Msg("synthesis failed")
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "synthesis failed"})
	}
	key := fmt.Sprintf("speeches/%s/%s.mp3", block.SpeechID, block.ID)
	url, err := h.Store.Put(ctx, key, audio)
	if err != nil {
		return h.fail(c, err, "store audio")
	}
	if err := h.Speeches.SetBlockAudio(ctx, block.ID, url); err != nil {
		return h.fail(c, err, "record audio url")
	}
	block.AudioURL = url
	h.refreshStatus(ctx, user.ID, block.SpeechID)

	chars := len([]rune(block.Text))
	if err := h.Users.AddSynthesizedChars(ctx, user.ID, chars); err != nil {
		h.Log.Warn().Err(err).Uint64("user_id", user.ID).Msg("usage counter update failed")
	}
	h.Rec.RecordSynthesis(chars)

	if err := h.Publisher.PublishSpeechSynthesized(ctx, queue.SpeechSynthesizedEvent{
		SpeechID:      block.SpeechID,
		BlockID:       block.ID,
		UserID:        user.ID,
		VoiceID:       block.VoiceID,
		Characters:    chars,
		AudioURL:      url,
		SynthesizedAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		h.Log.Warn().Err(err).Str("block_id", block.ID).Msg("event publish failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"block": block})
}

// refreshStatus re-derives the speech status after a block mutation. A
// failure here must not fail the mutation the client asked for.
func (h *SpeechHandler) refreshStatus(ctx context.Context, userID uint64, speechID string) {
	if _, err := h.Speeches.RefreshStatus(ctx, userID, speechID); err != nil {
		h.Log.Warn().Err(err).Str("speech_id", speechID).Msg("status refresh failed")
	}
}

func (h *SpeechHandler) removeAudio(ctx context.Context, audioURL string) {
	if key := storage.KeyFromURL(audioURL); key != "" {
		if err := h.Store.Delete(ctx, key); err != nil {
			h.Log.Warn().Err(err).Str("key", key).Msg("audio cleanup failed")
		}
	}
}

func (h *SpeechHandler) fail(c echo.Context, err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	if errors.Is(err, repository.ErrInvalidBlockOrder) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "blockIds must match the speech's blocks"})
	}
	h.Log.Error().Err(err).Str("op", op).Msg("speech operation failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
