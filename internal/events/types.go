package events

import (
	"time"
)

// Event is the base interface for pipeline events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicScreen = "screen"
	TopicRefine = "refine"
)

// Event type constants
const (
	EventTypeTaskScreened = "task.screened"
	EventTypeTaskInserted = "task.inserted"
	EventTypeTaskDropped  = "task.dropped"
	EventTypeTaskClaimed  = "task.claimed"
	EventTypeTaskRefined  = "task.refined"
	EventTypeTaskFailed   = "task.failed"
)

// TaskScreenedEvent is published when a fast worker finishes a coarse relaxation.
type TaskScreenedEvent struct {
	ID        string
	Slot      int
	Energy    float64
	Elapsed   time.Duration
	Timestamp time.Time
}

func (e TaskScreenedEvent) EventType() string { return EventTypeTaskScreened }
func (e TaskScreenedEvent) TaskID() string    { return e.ID }

// TaskInsertedEvent is published when a candidate lands in the waiting pool.
// Evicted names the member that was displaced to make room, if any.
type TaskInsertedEvent struct {
	ID        string
	Energy    float64
	Evicted   string
	Timestamp time.Time
}

func (e TaskInsertedEvent) EventType() string { return EventTypeTaskInserted }
func (e TaskInsertedEvent) TaskID() string    { return e.ID }

// TaskDroppedEvent is published when a full pool rejects a candidate.
// A normal outcome, recorded for observability only.
type TaskDroppedEvent struct {
	ID        string
	Energy    float64
	Timestamp time.Time
}

func (e TaskDroppedEvent) EventType() string { return EventTypeTaskDropped }
func (e TaskDroppedEvent) TaskID() string    { return e.ID }

// TaskClaimedEvent is published when a slow worker wins a pool entry.
type TaskClaimedEvent struct {
	ID        string
	WorkerID  string
	Energy    float64
	Timestamp time.Time
}

func (e TaskClaimedEvent) EventType() string { return EventTypeTaskClaimed }
func (e TaskClaimedEvent) TaskID() string    { return e.ID }

// TaskRefinedEvent is published when a refinement completes and its result
// is visible in the outbox.
type TaskRefinedEvent struct {
	ID        string
	WorkerID  string
	Energy    float64
	Elapsed   time.Duration
	Timestamp time.Time
}

func (e TaskRefinedEvent) EventType() string { return EventTypeTaskRefined }
func (e TaskRefinedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a job's computation raises, at either stage.
type TaskFailedEvent struct {
	ID        string
	Stage     string // "screen" or "refine"
	WorkerID  string
	Err       error
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }
