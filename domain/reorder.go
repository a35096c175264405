package domain

import "math"

// Unbounded marks an open upper bound in a Shift range.
const Unbounded = math.MaxInt32

// MoveRequest asks to place a task at NewPosition within NewStatus.
type MoveRequest struct {
	TaskID      int64  `json:"taskId"`
	UserID      int64  `json:"userId"`
	NewStatus   Status `json:"newStatus"`
	NewPosition int    `json:"newPosition"`
}

// Validate rejects requests that could never be applied.
func (r MoveRequest) Validate() error {
	if r.TaskID <= 0 {
		return Validationf("taskId is required")
	}
	if r.UserID <= 0 {
		return Validationf("userId is required")
	}
	if !r.NewStatus.Valid() {
		return Validationf("invalid status %q", r.NewStatus)
	}
	if r.NewPosition < 0 {
		return Validationf("newPosition must be non-negative")
	}
	return nil
}

// Shift adds Delta to the position of every task in Status whose position
// lies in [Min, Max]. The moving task itself is never part of a shift.
type Shift struct {
	Status Status
	Min    int
	Max    int
	Delta  int
}

// Covers reports whether a task at (status, pos) is affected by the shift.
func (s Shift) Covers(status Status, pos int) bool {
	return status == s.Status && pos >= s.Min && pos <= s.Max
}

// TimerChange describes what happens to StartedAt during a move.
type TimerChange int

const (
	TimerKeep TimerChange = iota
	TimerStart
	TimerClear
)

// MovePlan is the set of writes needed to apply a MoveRequest.
type MovePlan struct {
	TaskID      int64
	UserID      int64
	OldStatus   Status
	OldPosition int
	NewStatus   Status
	NewPosition int
	Shifts      []Shift
	Timer       TimerChange
	NoOp        bool
}

// PlanMove computes the shifts for moving cur according to req. targetCount
// is the number of tasks currently in req.NewStatus, cur included when it
// already lives there. NewPosition is clamped so the column stays contiguous.
func PlanMove(cur Task, req MoveRequest, targetCount int) MovePlan {
	plan := MovePlan{
		TaskID:      cur.ID,
		UserID:      cur.UserID,
		OldStatus:   cur.Status,
		OldPosition: cur.Position,
		NewStatus:   req.NewStatus,
		NewPosition: req.NewPosition,
	}

	sameColumn := cur.Status == req.NewStatus
	limit := targetCount
	if sameColumn {
		limit = targetCount - 1
	}
	if limit < 0 {
		limit = 0
	}
	if plan.NewPosition > limit {
		plan.NewPosition = limit
	}

	if sameColumn {
		switch {
		case plan.OldPosition < plan.NewPosition:
			plan.Shifts = []Shift{{Status: cur.Status, Min: plan.OldPosition + 1, Max: plan.NewPosition, Delta: -1}}
		case plan.OldPosition > plan.NewPosition:
			plan.Shifts = []Shift{{Status: cur.Status, Min: plan.NewPosition, Max: plan.OldPosition - 1, Delta: 1}}
		default:
			plan.NoOp = true
		}
		return plan
	}

	plan.Shifts = []Shift{
		CloseGap(cur),
		{Status: req.NewStatus, Min: plan.NewPosition, Max: Unbounded, Delta: 1},
	}
	switch {
	case req.NewStatus == StatusDoing:
		plan.Timer = TimerStart
	case cur.Status == StatusDoing:
		plan.Timer = TimerClear
	}
	return plan
}

// CloseGap is the shift that compacts t's column once t leaves it.
func CloseGap(t Task) Shift {
	return Shift{Status: t.Status, Min: t.Position + 1, Max: Unbounded, Delta: -1}
}
