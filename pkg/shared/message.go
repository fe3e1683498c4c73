// Package shared holds the message types exchanged between the
// interpreter core and the terminal frontends.
package shared

// MessageType identifies the kind of a terminal message. The numeric
// values are part of the websocket wire protocol and must stay stable.
type MessageType int

const (
	MessageTypeText         MessageType = 0 // plain output line
	MessageTypeClear        MessageType = 1 // clear the screen
	MessageTypeSession      MessageType = 2 // session id handover
	MessageTypeInputControl MessageType = 3 // enable or disable the input line
	MessageTypePrompt       MessageType = 4 // prompt symbol update
	MessageTypeInput        MessageType = 5 // input request with prompt text
	MessageTypeMode         MessageType = 6 // mode switch ("repl", "run")
	MessageTypeAuthRefresh  MessageType = 7 // session token refresh required

	// MessageTypeError sits outside the frontend display range so a
	// frontend that does not know it falls back to text rendering.
	MessageTypeError MessageType = 100
)

// Message is one websocket frame between backend and terminal.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content,omitempty"`

	// SessionID tags messages when several sessions share a connection.
	SessionID string `json:"sessionId,omitempty"`

	// InputEnabled is a pointer so false and unset stay distinguishable.
	InputEnabled *bool  `json:"inputEnabled,omitempty"`
	PromptSymbol string `json:"promptSymbol,omitempty"`

	// Mode carries the target mode for MessageTypeMode.
	Mode string `json:"mode,omitempty"`
}
