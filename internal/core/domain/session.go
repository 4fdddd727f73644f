package domain

import (
	"fmt"
	"time"
)

// Turn is one user utterance of a conversational topic.
type Turn struct {
	Number       int    `json:"number"`
	RawUtterance string `json:"raw_utterance"`
}

// Topic is one conversation of an evaluation batch.
type Topic struct {
	Number      int    `json:"number"`
	Description string `json:"description,omitempty"`
	Turns       []Turn `json:"turn"`
}

// QueryID builds the run identifier of a turn within a topic.
func QueryID(topic, turn int) string {
	return fmt.Sprintf("%d_%d", topic, turn)
}

type SessionState string

const (
	SessionIdle       SessionState = "idle"
	SessionInProgress SessionState = "in_progress"
)

// SessionInfo is the externally visible state of a conversation session.
type SessionInfo struct {
	ID        string       `json:"id"`
	State     SessionState `json:"state"`
	Turns     int          `json:"turns"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
