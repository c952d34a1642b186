package domain

import "time"

// ChatMessage is one entry of the session chat log. The sender name is
// resolved at record time so the log stays meaningful after disconnects.
type ChatMessage struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}
