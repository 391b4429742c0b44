// Package domain contains core concepts of the chat client.
// This file defines chat messages and their rules.
// Messages are append-only and never persisted.
package domain

// ChatMessage is one entry of the in-memory chat history.
// Exactly one of Text and Image is populated. Timestamp is in unix milliseconds.
type ChatMessage struct {
	SenderID  string `json:"senderId"`
	Text      string `json:"text,omitempty"`
	Image     string `json:"image,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// IsImage reports whether the message carries an inline image.
func (m ChatMessage) IsImage() bool {
	return m.Image != ""
}

// Valid checks the exactly-one-of rule.
func (m ChatMessage) Valid() bool {
	return (m.Text == "") != (m.Image == "")
}
