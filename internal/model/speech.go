package model

import "time"

// Speech status values.
const (
	SpeechDraft = "DRAFT"
	SpeechReady = "READY"
)

// Speech mirrors the `speeches` table. A speech is an ordered collection of
// text blocks owned by one user; blocks are synthesized individually.
type Speech struct {
	ID        string    `json:"id"`
	UserID    uint64    `json:"userId"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SpeechBlock mirrors the `speech_blocks` table. Position orders blocks
// within a speech; AudioURL is empty until the block has been synthesized.
type SpeechBlock struct {
	ID        string    `json:"id"`
	SpeechID  string    `json:"speechId"`
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	VoiceID   string    `json:"voiceId"`
	AudioURL  string    `json:"audioUrl"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
