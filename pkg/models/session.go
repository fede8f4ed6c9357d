package models

import "time"

// Pair is one recorded conversational turn: the user's question, the
// assistant's answer, and optionally the name of a tool the assistant invoked.
// Pairs are immutable once recorded.
type Pair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Tool     string `json:"tool,omitempty"`
}

// Session is one recorded conversation: an identified, timestamped ordered
// sequence of pairs. Sessions are read-only inputs to optimization.
type Session struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Pairs     []Pair    `json:"pairs"`
}

// Example is a training instance derived from one session: the rendered
// conversation up to the final turn, the rendered final turn itself, and the
// tools invoked anywhere in the session.
type Example struct {
	ConversationContext  string   `json:"conversationContext"`
	ExpectedTurnResponse string   `json:"expectedTurnResponse"`
	ToolsUsed            []string `json:"toolsUsed,omitempty"`
}
