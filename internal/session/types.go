package session

import (
	"context"
	"fmt"
	"time"

	"dilemma-server/internal/chat"
	"dilemma-server/internal/payoff"
)

type Phase string

const (
	PhaseWaiting       Phase = "waiting"
	PhaseAnnouncement  Phase = "announcement"
	PhaseCommunication Phase = "communication"
	PhaseAction        Phase = "action"
	PhaseRevelation    Phase = "revelation"
	PhaseEnded         Phase = "ended"
)

type Action string

const (
	ActionCooperate Action = "cooperate"
	ActionDefect    Action = "defect"
	ActionOptOut    Action = "opt_out"
)

func ValidAction(a Action) bool {
	switch a {
	case ActionCooperate, ActionDefect, ActionOptOut:
		return true
	}
	return false
}

type ParticipantKind string

const (
	KindHuman     ParticipantKind = "human"
	KindAutomated ParticipantKind = "automated"
	KindScripted  ParticipantKind = "scripted"
)

// Participant is owned exclusively by the Session that contains it. Created
// at session initialization from the seat assignment, mutated only on the
// session's processing path.
type Participant struct {
	Identity      string
	Seat          int
	Kind          ParticipantKind
	Connected     bool
	Score         float64
	RefusalBudget int
	Pending       Action // empty until submitted or defaulted
	Submitted     bool
}

// RoundRecord is created once per round at the revelation transition and
// immutable thereafter.
type RoundRecord struct {
	Round      int                `json:"round"`
	Schedule   payoff.Schedule    `json:"schedule"`
	Actions    map[string]Action  `json:"actions"`
	Payoffs    map[string]float64 `json:"payoffs"`
	Scores     map[string]float64 `json:"scores"`
	RevealedAt time.Time          `json:"revealed_at"`
}

// Config is the per-experiment surface, supplied at session creation and
// immutable for the session's lifetime.
type Config struct {
	ExperimentID string `json:"experiment_id"`

	Seats     int               `json:"seats"`
	Rounds    int               `json:"rounds"`
	SeatKinds []ParticipantKind `json:"seat_kinds,omitempty"` // defaults to all human

	AnnouncementDuration  time.Duration `json:"announcement_duration"`
	CommunicationDuration time.Duration `json:"communication_duration"`
	ActionDuration        time.Duration `json:"action_duration"`
	RevelationDuration    time.Duration `json:"revelation_duration"`

	RefusalBudget      int `json:"refusal_budget"`
	MinConnectedHumans int `json:"min_connected_humans"`
	ChatHistoryCap     int `json:"chat_history_cap"`

	Payoff payoff.Params `json:"payoff"`
}

func (c Config) Validate() error {
	if c.Seats < 2 {
		return fmt.Errorf("config needs at least 2 seats, got %d", c.Seats)
	}
	if c.Rounds < 1 {
		return fmt.Errorf("config needs at least 1 round, got %d", c.Rounds)
	}
	if len(c.SeatKinds) != 0 && len(c.SeatKinds) != c.Seats {
		return fmt.Errorf("seat_kinds has %d entries for %d seats", len(c.SeatKinds), c.Seats)
	}
	for _, d := range []time.Duration{c.AnnouncementDuration, c.CommunicationDuration, c.ActionDuration, c.RevelationDuration} {
		if d <= 0 {
			return fmt.Errorf("all phase durations must be positive")
		}
	}
	if c.RefusalBudget < 0 {
		return fmt.Errorf("refusal budget cannot be negative")
	}
	if c.Payoff.Seats != c.Seats {
		return fmt.Errorf("payoff params are sized for %d seats, config has %d", c.Payoff.Seats, c.Seats)
	}
	return nil
}

// SeatKind returns the kind configured for a seat, defaulting to human.
func (c Config) SeatKind(seat int) ParticipantKind {
	if seat >= 0 && seat < len(c.SeatKinds) && c.SeatKinds[seat] != "" {
		return c.SeatKinds[seat]
	}
	return KindHuman
}

// SeatAssignment is the waiting room's handoff: who sits where.
type SeatAssignment struct {
	Identity  string
	Seat      int
	Kind      ParticipantKind
	Connected bool
}

// ParticipantView is the public projection of a participant. Pending actions
// are never exposed before revelation.
type ParticipantView struct {
	Identity      string          `json:"identity"`
	Seat          int             `json:"seat"`
	Kind          ParticipantKind `json:"kind"`
	Connected     bool            `json:"connected"`
	Score         float64         `json:"score"`
	RefusalBudget int             `json:"refusal_budget"`
	Submitted     bool            `json:"submitted"`
}

// Snapshot is the full authoritative state published to a fresh subscriber.
type Snapshot struct {
	SessionID       string             `json:"session_id"`
	ExperimentID    string             `json:"experiment_id"`
	Phase           Phase              `json:"phase"`
	Round           int                `json:"round"`
	Held            bool               `json:"held"`
	Deadline        time.Time          `json:"deadline,omitzero"`
	Participants    []ParticipantView  `json:"participants"`
	RoundsCompleted int                `json:"rounds_completed"`
	FinalScores     map[string]float64 `json:"final_scores,omitempty"`
	EndReason       string             `json:"end_reason,omitempty"`
}

// Delta payloads. Each mutating operation emits its own delta record rather
// than relying on field-level diffing.
type PhaseChange struct {
	Phase    Phase     `json:"phase"`
	Round    int       `json:"round"`
	Deadline time.Time `json:"deadline,omitzero"`
	Payload  any       `json:"payload,omitempty"`
}

type ActionReceipt struct {
	Identity  string `json:"identity"`
	Submitted bool   `json:"submitted"`
}

type ConnectionChange struct {
	Identity  string `json:"identity"`
	Connected bool   `json:"connected"`
}

type HoldChange struct {
	Held   bool   `json:"held"`
	Reason string `json:"reason,omitempty"`
}

type RoundOutcome struct {
	Record RoundRecord `json:"record"`
}

type Ended struct {
	Reason      string             `json:"reason"`
	FinalScores map[string]float64 `json:"final_scores"`
}

type ChatDelivery struct {
	Record chat.Record `json:"record"`
}

// Archiver is the persistence collaborator. Failures are logged and never
// block phase progression; authoritative state lives in the session.
type Archiver interface {
	SaveRoundRecord(ctx context.Context, sessionID string, rec RoundRecord) error
	SaveChatRecord(ctx context.Context, sessionID string, rec chat.Record) error
	UpdateStatus(ctx context.Context, sessionID string, status string) error
}
