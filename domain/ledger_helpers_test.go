package domain

import "sort"

// applyMove executes plan against an in-memory task list owned by one user and
// returns the tasks whose row changed, the moved task last.
func applyMove(tasks []Task, plan MovePlan) []Task {
	if plan.NoOp {
		return nil
	}
	var changed []Task
	moved := -1
	for i := range tasks {
		t := &tasks[i]
		if t.UserID != plan.UserID {
			continue
		}
		if t.ID == plan.TaskID {
			moved = i
			continue
		}
		for _, s := range plan.Shifts {
			if s.Covers(t.Status, t.Position) {
				t.Position += s.Delta
				changed = append(changed, *t)
				break
			}
		}
	}
	if moved >= 0 {
		t := &tasks[moved]
		t.Status = plan.NewStatus
		t.Position = plan.NewPosition
		changed = append(changed, *t)
	}
	return changed
}

// verifyPartitions checks that every (user, status) column holds exactly the
// positions 0..k-1. It returns the first offending column, if any.
func verifyPartitions(tasks []Task) (userID int64, status Status, ok bool) {
	type key struct {
		user   int64
		status Status
	}
	cols := make(map[key][]int)
	for _, t := range tasks {
		k := key{t.UserID, t.Status}
		cols[k] = append(cols[k], t.Position)
	}
	for k, positions := range cols {
		sort.Ints(positions)
		for i, p := range positions {
			if p != i {
				return k.user, k.status, false
			}
		}
	}
	return 0, "", true
}
