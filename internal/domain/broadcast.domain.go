package domain

import "time"

// Member is one roster entry. The roster is flat: every active member
// receives every broadcast.
type Member struct {
	ID        int64
	Address   string
	Name      string
	IsAdmin   bool
	Active    bool
	CreatedAt time.Time
}

// Broadcast is a message sent by one member to the whole roster.
// Immutable after creation except for ReactionSummary and
// LastReactionUpdate, which only the reaction aggregator writes.
type Broadcast struct {
	ID                 string
	SenderAddress      string
	SenderName         string
	Body               string
	ReactionSummary    string
	LastReactionUpdate *time.Time
	CreatedAt          time.Time
}

// Reaction is the single row a reactor holds against one broadcast.
// Re-reacting mutates this row; it is never duplicated.
type Reaction struct {
	ID             int64
	BroadcastID    string
	ReactorAddress string
	ReactorName    string
	Emoji          string
	PreviousEmoji  string
	IsActive       bool
	Processed      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryAttempt records one recipient's outcome for one outbound send.
// Terminal rows (delivered or failed) are never mutated.
type DeliveryAttempt struct {
	ID               int64
	MessageID        string
	RecipientAddress string
	Status           DeliveryStatus
	ProviderID       string
	Error            string
	DurationMs       int64
	RetryCount       int
	CreatedAt        time.Time
}

// BroadcastOutcome summarizes a completed fan-out.
type BroadcastOutcome struct {
	MessageID   string
	SentCount   int
	FailedCount int
	Elapsed     time.Duration
}

type ReactionAction string

const (
	ReactionAdded   ReactionAction = "added"
	ReactionRemoved ReactionAction = "removed"
	ReactionChanged ReactionAction = "changed"
)

// RosterStats backs the STATS command and the ops endpoint.
type RosterStats struct {
	ActiveMembers  int `json:"active_members"`
	MessagesWeek   int `json:"messages_week"`
	ReactionsToday int `json:"reactions_today"`
}
