package card

import "time"

// TransitionLog is one recorded (from, to, trigger) transition for a card,
// written atomically alongside update_card_state (spec.md §6).
type TransitionLog struct {
	ID         string
	CardID     string
	FromState  State
	ToState    State
	Trigger    Trigger
	OccurredAt time.Time
}

// Snapshot is a point-in-time copy of a card, taken at points the
// repository layer decides (e.g. before a risky transition, or on a
// schedule) so a card's full history can be inspected without replaying
// every transition log row. spec.md §6 lists "Snapshots" alongside
// Checkpoints in the repository's CRUD surface; Checkpoints stay in the
// dedicated checkpoint package (C4) since that contract is already fully
// specified in spec.md §4.4 — a Snapshot here is the coarser, whole-card
// analogue for audit/history rather than loop-resume state.
type Snapshot struct {
	ID         string
	CardID     string
	Card       Card
	CapturedAt time.Time
}
