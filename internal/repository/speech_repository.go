package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/voicecraft/speech-backend/internal/model"
)

// SpeechRepo persists speeches and their ordered text blocks. Every query
// that reads or mutates a speech is scoped by user_id, so ownership is
// enforced at the SQL layer rather than in handlers.
type SpeechRepo struct{ DB *sql.DB }

func NewSpeechRepo(db *sql.DB) *SpeechRepo { return &SpeechRepo{DB: db} }

// ListByUser returns the user's speeches, newest first.
func (r *SpeechRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Speech, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,user_id,title,status,created_at,updated_at FROM speeches WHERE user_id=? ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Speech{}
	for rows.Next() {
		var s model.Speech
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create inserts a speech with a generated id.
func (r *SpeechRepo) Create(ctx context.Context, userID uint64, title string) (*model.Speech, error) {
	id := uuid.New().String()
	if _, err := r.DB.ExecContext(ctx,
		"INSERT INTO speeches (id, user_id, title, status) VALUES (?,?,?,?)",
		id, userID, title, model.SpeechDraft); err != nil {
		return nil, err
	}
	return r.Get(ctx, userID, id)
}

// Get fetches one speech owned by userID. Returns ErrNotFound when the id
// does not exist or belongs to someone else; the two cases are deliberately
// indistinguishable.
func (r *SpeechRepo) Get(ctx context.Context, userID uint64, id string) (*model.Speech, error) {
	var s model.Speech
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,title,status,created_at,updated_at FROM speeches WHERE id=? AND user_id=? LIMIT 1",
		id, userID).Scan(&s.ID, &s.UserID, &s.Title, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Rename updates a speech title.
func (r *SpeechRepo) Rename(ctx context.Context, userID uint64, id, title string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE speeches SET title=? WHERE id=? AND user_id=?", title, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetStatus updates a speech status.
func (r *SpeechRepo) SetStatus(ctx context.Context, userID uint64, id, status string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE speeches SET status=? WHERE id=? AND user_id=?", status, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes a speech; blocks go with it via the FK cascade.
func (r *SpeechRepo) Delete(ctx context.Context, userID uint64, id string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM speeches WHERE id=? AND user_id=?", id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListBlocks returns a speech's blocks in position order, after checking
// ownership.
func (r *SpeechRepo) ListBlocks(ctx context.Context, userID uint64, speechID string) ([]model.SpeechBlock, error) {
	if _, err := r.Get(ctx, userID, speechID); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,speech_id,position,text,voice_id,audio_url,created_at,updated_at FROM speech_blocks WHERE speech_id=? ORDER BY position ASC",
		speechID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.SpeechBlock{}
	for rows.Next() {
		var b model.SpeechBlock
		if err := rows.Scan(&b.ID, &b.SpeechID, &b.Position, &b.Text, &b.VoiceID, &b.AudioURL, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// AddBlock appends a block at the next free position.
func (r *SpeechRepo) AddBlock(ctx context.Context, userID uint64, speechID, text, voiceID string) (*model.SpeechBlock, error) {
	if _, err := r.Get(ctx, userID, speechID); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	if _, err := r.DB.ExecContext(ctx,
		`INSERT INTO speech_blocks (id, speech_id, position, text, voice_id)
		 SELECT ?, ?, COALESCE(MAX(position),0)+1, ?, ? FROM speech_blocks WHERE speech_id=?`,
		id, speechID, text, voiceID, speechID); err != nil {
		return nil, err
	}
	return r.GetBlock(ctx, userID, speechID, id)
}

// ReorderBlocks rewrites block positions to match blockIDs, first to last.
// The ids must be exactly the speech's current block set — no omissions, no
// strangers, no repeats — or ErrInvalidBlockOrder is returned and nothing
// changes. The rewrite runs in one transaction so a concurrent reader never
// sees a half-applied order.
func (r *SpeechRepo) ReorderBlocks(ctx context.Context, userID uint64, speechID string, blockIDs []string) error {
	blocks, err := r.ListBlocks(ctx, userID, speechID)
	if err != nil {
		return err
	}
	if len(blockIDs) != len(blocks) {
		return ErrInvalidBlockOrder
	}
	current := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		current[b.ID] = true
	}
	for _, id := range blockIDs {
		if !current[id] {
			return ErrInvalidBlockOrder
		}
		delete(current, id) // catches repeats
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i, id := range blockIDs {
		if _, err := tx.ExecContext(ctx,
			"UPDATE speech_blocks SET position=? WHERE id=? AND speech_id=?",
			i+1, id, speechID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RefreshStatus re-derives a speech's status from its blocks: READY once at
// least one block exists and every block has audio, DRAFT otherwise. Called
// after any mutation that adds, edits or removes blocks or audio.
func (r *SpeechRepo) RefreshStatus(ctx context.Context, userID uint64, speechID string) (string, error) {
	if _, err := r.Get(ctx, userID, speechID); err != nil {
		return "", err
	}
	var total, withAudio int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(IF(audio_url<>'',1,NULL)) FROM speech_blocks WHERE speech_id=?",
		speechID).Scan(&total, &withAudio); err != nil {
		return "", err
	}
	status := model.SpeechDraft
	if total > 0 && withAudio == total {
		status = model.SpeechReady
	}
	if err := r.SetStatus(ctx, userID, speechID, status); err != nil {
		return "", err
	}
	return status, nil
}

// GetBlock fetches one block of an owned speech.
func (r *SpeechRepo) GetBlock(ctx context.Context, userID uint64, speechID, blockID string) (*model.SpeechBlock, error) {
	var b model.SpeechBlock
	err := r.DB.QueryRowContext(ctx,
		`SELECT b.id,b.speech_id,b.position,b.text,b.voice_id,b.audio_url,b.created_at,b.updated_at
		 FROM speech_blocks b JOIN speeches s ON s.id=b.speech_id
		 WHERE b.id=? AND b.speech_id=? AND s.user_id=? LIMIT 1`,
		blockID, speechID, userID).
		Scan(&b.ID, &b.SpeechID, &b.Position, &b.Text, &b.VoiceID, &b.AudioURL, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBlock edits a block's text and/or voice. Editing clears any stale
// audio so a re-synthesis is required.
func (r *SpeechRepo) UpdateBlock(ctx context.Context, userID uint64, speechID, blockID string, text, voiceID *string) error {
	if _, err := r.GetBlock(ctx, userID, speechID, blockID); err != nil {
		return err
	}
	set := "audio_url=''"
	args := []interface{}{}
	if text != nil {
		set += ",text=?"
		args = append(args, *text)
	}
	if voiceID != nil {
		set += ",voice_id=?"
		args = append(args, *voiceID)
	}
	args = append(args, blockID)
	_, err := r.DB.ExecContext(ctx,
		fmt.Sprintf("UPDATE speech_blocks SET %s WHERE id=?", set), args...)
	return err
}

// SetBlockAudio records the stored audio location after synthesis.
func (r *SpeechRepo) SetBlockAudio(ctx context.Context, blockID, audioURL string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE speech_blocks SET audio_url=? WHERE id=?", audioURL, blockID)
	return err
}

// DeleteBlock removes one block of an owned speech.
func (r *SpeechRepo) DeleteBlock(ctx context.Context, userID uint64, speechID, blockID string) error {
	if _, err := r.GetBlock(ctx, userID, speechID, blockID); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, "DELETE FROM speech_blocks WHERE id=?", blockID)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
