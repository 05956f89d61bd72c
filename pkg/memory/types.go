package memory

import (
	"time"

	"github.com/mindloop-app/mindloop/pkg/tokens"
)

// Role identifies the author of a conversation message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation record. Immutable once created and owned
// exclusively by the session that contains it.
type Message struct {
	ID            string    `json:"id"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	TokenEstimate int       `json:"tokenEstimate"`
	// Crisis marks messages belonging to a safety intervention. They
	// stay in the transcript for continuity but are excluded from
	// insight extraction and long-term memory updates.
	Crisis bool `json:"crisis,omitempty"`
}

// NewMessage stamps a message with an id, timestamp and token estimate.
func NewMessage(id, role, content string) Message {
	return Message{
		ID:            id,
		Role:          role,
		Content:       content,
		Timestamp:     time.Now(),
		TokenEstimate: tokens.Estimate(content),
	}
}

// Session is the single active free-form conversation. Messages are
// append-only while the session is active.
type Session struct {
	ID             string    `json:"id"`
	Messages       []Message `json:"messages"`
	StartedAt      time.Time `json:"startedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ModeID         string    `json:"modeId"`
}

// SessionSummary is the immutable artifact a session becomes when it
// ends. Summaries live in a capped FIFO log; the oldest is evicted
// once the cap is exceeded, because age matters more than access.
type SessionSummary struct {
	SessionID       string   `json:"sessionId"`
	Date            string   `json:"date"`
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	MessageCount    int      `json:"messageCount"`
	DurationMinutes int      `json:"durationMinutes"`
}

// Insight is a self-realization surfaced from a conversation. Only
// user-confirmed insights flow back into future prompts.
type Insight struct {
	ID              string    `json:"id"`
	Content         string    `json:"content"`
	ConfirmedByUser bool      `json:"confirmedByUser"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Trigger records a situation that leads the user to open the target
// app. Frequency accumulates on repeated discovery.
type Trigger struct {
	ID           string    `json:"id"`
	Trigger      string    `json:"trigger"`
	Frequency    int       `json:"frequency"`
	DiscoveredAt time.Time `json:"discoveredAt"`
}

// Strategy is a coping approach and how well it has worked so far.
// Effectiveness is in [0,1]; only strategies above the surfacing
// threshold appear in prompts.
type Strategy struct {
	Description   string  `json:"description"`
	Effectiveness float64 `json:"effectiveness"`
	UsageCount    int     `json:"usageCount"`
}

// LongTermMemory is the durable cross-session record behind the coach.
// It is never nil once loaded; absence of stored data yields this
// explicit empty default.
type LongTermMemory struct {
	ConfirmedInsights   []Insight  `json:"confirmedInsights"`
	IdentifiedTriggers  []Trigger  `json:"identifiedTriggers"`
	EffectiveStrategies []Strategy `json:"effectiveStrategies"`
}

// EmptyLongTermMemory returns the defined empty default.
func EmptyLongTermMemory() LongTermMemory {
	return LongTermMemory{
		ConfirmedInsights:   []Insight{},
		IdentifiedTriggers:  []Trigger{},
		EffectiveStrategies: []Strategy{},
	}
}
