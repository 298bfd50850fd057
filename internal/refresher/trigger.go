package refresher

import "time"

// TriggerKind enumerates the causes of a refresh run.
type TriggerKind string

const (
	TriggerPush     TriggerKind = "push"
	TriggerManual   TriggerKind = "manual"
	TriggerSchedule TriggerKind = "schedule"
)

// Trigger represents an invocation cause. Push triggers carry the remote
// revision that caused them; manual and schedule triggers carry none and the
// run operates on the branch head.
type Trigger struct {
	Kind       TriggerKind
	Revision   string
	Branch     string
	ReceivedAt time.Time
}

// ManualTrigger returns a trigger for an operator-initiated run.
func ManualTrigger() Trigger {
	return Trigger{Kind: TriggerManual, ReceivedAt: time.Now()}
}

// ScheduleTrigger returns a trigger emitted by the daemon scheduler.
func ScheduleTrigger() Trigger {
	return Trigger{Kind: TriggerSchedule, ReceivedAt: time.Now()}
}

// PushTrigger returns a trigger for a received push event.
func PushTrigger(revision, branch string) Trigger {
	return Trigger{Kind: TriggerPush, Revision: revision, Branch: branch, ReceivedAt: time.Now()}
}
