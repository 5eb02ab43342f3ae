// Package queue publishes and consumes domain events over RabbitMQ.
package queue

// SpeechSynthesizedQueue is the durable queue both sides declare.
const SpeechSynthesizedQueue = "speech.synthesized"

// SpeechSynthesizedEvent is published after a block's audio has been
// rendered and stored. It carries enough for downstream consumers to log or
// meter without touching the primary database.
type SpeechSynthesizedEvent struct {
	SpeechID      string `json:"speech_id"`
	BlockID       string `json:"block_id"`
	UserID        uint64 `json:"user_id"`
	VoiceID       string `json:"voice_id"`
	Characters    int    `json:"characters"`
	AudioURL      string `json:"audio_url"`
	SynthesizedAt string `json:"synthesized_at"`
}
