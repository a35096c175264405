package storage

import (
	"context"
	"fmt"

	"github.com/Adibmaros/tasks-management/domain"
	"github.com/Adibmaros/tasks-management/realtime"
)

// Reorder moves a task to req.NewPosition within req.NewStatus, shifting its
// neighbours so both affected columns stay contiguous.
func (s *Storage) Reorder(ctx context.Context, req domain.MoveRequest) (domain.Task, error) {
	if err := req.Validate(); err != nil {
		return domain.Task{}, err
	}
	var moved domain.Task
	err := s.withUserTx(ctx, req.UserID, "reorder", func(t *txn) error {
		var err error
		moved, err = t.move(ctx, req.TaskID, req.NewStatus, req.NewPosition)
		return err
	})
	return moved, err
}

// ArchiveTask moves a task to the end of the ARCHIVED column.
func (s *Storage) ArchiveTask(ctx context.Context, userID, id int64) (domain.Task, error) {
	var archived domain.Task
	err := s.withUserTx(ctx, userID, "archive task", func(t *txn) error {
		var err error
		archived, err = t.move(ctx, id, domain.StatusArchived, domain.Unbounded)
		return err
	})
	return archived, err
}

// UnarchiveTask returns an archived task to the end of PLAN.
func (s *Storage) UnarchiveTask(ctx context.Context, userID, id int64) (domain.Task, error) {
	var restored domain.Task
	err := s.withUserTx(ctx, userID, "unarchive task", func(t *txn) error {
		cur, err := t.task(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != domain.StatusArchived {
			return domain.Validationf("task %d is not archived", id)
		}
		restored, err = t.move(ctx, id, domain.StatusPlan, domain.Unbounded)
		return err
	})
	return restored, err
}

// move plans and applies a move inside the transaction. A move onto the
// task's current slot writes nothing and records no events.
func (t *txn) move(ctx context.Context, id int64, status domain.Status, position int) (domain.Task, error) {
	cur, err := t.task(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if status == domain.StatusArchived && cur.Status == domain.StatusArchived && position == domain.Unbounded {
		return cur, nil
	}

	count, err := t.count(ctx, status)
	if err != nil {
		return domain.Task{}, err
	}
	plan := domain.PlanMove(cur, domain.MoveRequest{
		TaskID:      id,
		UserID:      t.userID,
		NewStatus:   status,
		NewPosition: position,
	}, count)
	if plan.NoOp {
		return cur, nil
	}

	for _, sh := range plan.Shifts {
		if err := t.shift(ctx, sh, id); err != nil {
			return domain.Task{}, err
		}
	}

	moved := cur
	moved.Status = plan.NewStatus
	moved.Position = plan.NewPosition
	moved.UpdatedAt = t.now
	switch plan.Timer {
	case domain.TimerStart:
		now := t.now
		moved.StartedAt = &now
	case domain.TimerClear:
		moved.StartedAt = nil
	}

	_, err = t.ExecContext(ctx, t.Rebind(
		"UPDATE tasks SET status = ?, position = ?, started_at = ?, updated_at = ? WHERE id = ? AND user_id = ?"),
		moved.Status, moved.Position, moved.StartedAt, moved.UpdatedAt, id, t.userID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("placing task %d: %w", id, err)
	}
	if err := t.record(realtime.TableTasks, realtime.KindUpdate, moved, cur); err != nil {
		return domain.Task{}, err
	}
	return moved, nil
}

// count returns how many of the user's tasks sit in status.
func (t *txn) count(ctx context.Context, status domain.Status) (int, error) {
	var n int
	err := t.GetContext(ctx, &n, t.Rebind("SELECT COUNT(*) FROM tasks WHERE user_id = ? AND status = ?"), t.userID, status)
	if err != nil {
		return 0, fmt.Errorf("counting %s tasks: %w", status, err)
	}
	return n, nil
}

// shift applies sh to every task of the user except skipID and records an
// UPDATE event per shifted row.
func (t *txn) shift(ctx context.Context, sh domain.Shift, skipID int64) error {
	var rows []domain.Task
	err := t.SelectContext(ctx, &rows, t.Rebind(
		"SELECT "+taskColumns+" FROM tasks WHERE user_id = ? AND status = ? AND position >= ? AND position <= ? AND id <> ? ORDER BY position"),
		t.userID, sh.Status, sh.Min, sh.Max, skipID)
	if err != nil {
		return fmt.Errorf("selecting %s positions %d..%d: %w", sh.Status, sh.Min, sh.Max, err)
	}
	if len(rows) == 0 {
		return nil
	}

	_, err = t.ExecContext(ctx, t.Rebind(
		"UPDATE tasks SET position = position + ?, updated_at = ? WHERE user_id = ? AND status = ? AND position >= ? AND position <= ? AND id <> ?"),
		sh.Delta, t.now, t.userID, sh.Status, sh.Min, sh.Max, skipID)
	if err != nil {
		return fmt.Errorf("shifting %s positions %d..%d: %w", sh.Status, sh.Min, sh.Max, err)
	}

	for _, old := range rows {
		shifted := old
		shifted.Position += sh.Delta
		shifted.UpdatedAt = t.now
		if err := t.record(realtime.TableTasks, realtime.KindUpdate, shifted, old); err != nil {
			return err
		}
	}
	return nil
}
