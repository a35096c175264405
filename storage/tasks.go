package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adibmaros/tasks-management/domain"
	"github.com/Adibmaros/tasks-management/realtime"
)

const taskColumns = "id, user_id, name, description, status, position, started_at, duration_minutes, created_at, updated_at"

// boardOrder sorts live columns PLAN, DOING, DONE.
const boardOrder = "CASE status WHEN 'PLAN' THEN 0 WHEN 'DOING' THEN 1 WHEN 'DONE' THEN 2 ELSE 3 END, position"

// CreateTask appends a task to the end of its column.
func (s *Storage) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	if err := in.Validate(); err != nil {
		return domain.Task{}, err
	}
	var created domain.Task
	err := s.withUserTx(ctx, in.UserID, "create task", func(t *txn) error {
		if err := t.requireUser(ctx, in.UserID); err != nil {
			return err
		}
		var next int
		err := t.GetContext(ctx, &next, t.Rebind(
			"SELECT COALESCE(MAX(position), -1) + 1 FROM tasks WHERE user_id = ? AND status = ?"),
			in.UserID, in.Status)
		if err != nil {
			return fmt.Errorf("computing next position: %w", err)
		}

		created = domain.Task{
			UserID:          in.UserID,
			Name:            in.Name,
			Description:     normalizeDescription(in.Description),
			Status:          in.Status,
			Position:        next,
			DurationMinutes: in.DurationMinutes,
			CreatedAt:       t.now,
			UpdatedAt:       t.now,
		}
		if in.Status == domain.StatusDoing {
			started := t.now
			created.StartedAt = &started
		}

		err = t.GetContext(ctx, &created.ID, t.Rebind(`
			INSERT INTO tasks (user_id, name, description, status, position, started_at, duration_minutes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			created.UserID, created.Name, created.Description, created.Status, created.Position,
			created.StartedAt, created.DurationMinutes, created.CreatedAt, created.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting task: %w", err)
		}
		return t.record(realtime.TableTasks, realtime.KindInsert, created, nil)
	})
	return created, err
}

// GetTask returns a task owned by userID.
func (s *Storage) GetTask(ctx context.Context, userID, id int64) (domain.Task, error) {
	var task domain.Task
	err := s.db.GetContext(ctx, &task, s.db.Rebind("SELECT "+taskColumns+" FROM tasks WHERE id = ? AND user_id = ?"), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.NotFound("task", id)
	}
	if err != nil {
		return domain.Task{}, domain.Persistence("get task", fmt.Errorf("getting task %d: %w", id, err))
	}
	return task, nil
}

// UpdateTask applies a partial update to name, description and duration.
func (s *Storage) UpdateTask(ctx context.Context, userID, id int64, patch domain.TaskPatch) (domain.Task, error) {
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	var updated domain.Task
	err := s.withUserTx(ctx, userID, "update task", func(t *txn) error {
		cur, err := t.task(ctx, id)
		if err != nil {
			return err
		}
		if patch.Empty() {
			updated = cur
			return nil
		}

		updated = cur
		sets := []string{"updated_at = ?"}
		args := []any{t.now}
		if patch.Name != nil {
			sets = append(sets, "name = ?")
			args = append(args, *patch.Name)
			updated.Name = *patch.Name
		}
		if patch.Description != nil {
			desc := normalizeDescription(patch.Description)
			sets = append(sets, "description = ?")
			args = append(args, desc)
			updated.Description = desc
		}
		if patch.DurationMinutes != nil {
			sets = append(sets, "duration_minutes = ?")
			args = append(args, *patch.DurationMinutes)
			d := *patch.DurationMinutes
			updated.DurationMinutes = &d
		}
		updated.UpdatedAt = t.now
		args = append(args, id, userID)

		query := "UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE id = ? AND user_id = ?"
		if _, err := t.ExecContext(ctx, t.Rebind(query), args...); err != nil {
			return fmt.Errorf("updating task %d: %w", id, err)
		}
		return t.record(realtime.TableTasks, realtime.KindUpdate, updated, cur)
	})
	return updated, err
}

// StartTask sets StartedAt to now without moving the task.
func (s *Storage) StartTask(ctx context.Context, userID, id int64) (domain.Task, error) {
	var started domain.Task
	err := s.withUserTx(ctx, userID, "start task", func(t *txn) error {
		cur, err := t.task(ctx, id)
		if err != nil {
			return err
		}
		started = cur
		now := t.now
		started.StartedAt = &now
		started.UpdatedAt = now
		if _, err := t.ExecContext(ctx, t.Rebind(
			"UPDATE tasks SET started_at = ?, updated_at = ? WHERE id = ? AND user_id = ?"),
			now, now, id, userID); err != nil {
			return fmt.Errorf("starting task %d: %w", id, err)
		}
		return t.record(realtime.TableTasks, realtime.KindUpdate, started, cur)
	})
	return started, err
}

// DeleteTask removes a task and its tag links, then closes the gap it leaves.
func (s *Storage) DeleteTask(ctx context.Context, userID, id int64) error {
	return s.withUserTx(ctx, userID, "delete task", func(t *txn) error {
		cur, err := t.task(ctx, id)
		if err != nil {
			return err
		}

		var links []domain.TaskTag
		if err := t.SelectContext(ctx, &links, t.Rebind("SELECT task_id, tag_id FROM task_tags WHERE task_id = ?"), id); err != nil {
			return fmt.Errorf("listing links of task %d: %w", id, err)
		}
		if _, err := t.ExecContext(ctx, t.Rebind("DELETE FROM task_tags WHERE task_id = ?"), id); err != nil {
			return fmt.Errorf("deleting links of task %d: %w", id, err)
		}
		for _, l := range links {
			if err := t.record(realtime.TableTaskTags, realtime.KindDelete, nil, l); err != nil {
				return err
			}
		}

		res, err := t.ExecContext(ctx, t.Rebind("DELETE FROM tasks WHERE id = ? AND user_id = ?"), id, userID)
		if err != nil {
			return fmt.Errorf("deleting task %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NotFound("task", id)
		}
		if err := t.record(realtime.TableTasks, realtime.KindDelete, nil, cur); err != nil {
			return err
		}
		return t.shift(ctx, domain.CloseGap(cur), id)
	})
}

// ListBoard returns the user's live tasks ordered by column then position.
func (s *Storage) ListBoard(ctx context.Context, userID int64) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := s.db.SelectContext(ctx, &tasks, s.db.Rebind(
		"SELECT "+taskColumns+" FROM tasks WHERE user_id = ? AND status <> ? ORDER BY "+boardOrder),
		userID, domain.StatusArchived)
	if err != nil {
		return nil, domain.Persistence("list board", fmt.Errorf("querying board of user %d: %w", userID, err))
	}
	return tasks, nil
}

// ListArchived returns archived tasks, most recently archived first.
func (s *Storage) ListArchived(ctx context.Context, userID int64) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := s.db.SelectContext(ctx, &tasks, s.db.Rebind(
		"SELECT "+taskColumns+" FROM tasks WHERE user_id = ? AND status = ? ORDER BY updated_at DESC, id DESC"),
		userID, domain.StatusArchived)
	if err != nil {
		return nil, domain.Persistence("list archived", fmt.Errorf("querying archive of user %d: %w", userID, err))
	}
	return tasks, nil
}

// ListExpired returns the user's DOING tasks whose deadline has passed at now.
func (s *Storage) ListExpired(ctx context.Context, userID int64, now time.Time) ([]domain.Task, error) {
	var candidates []domain.Task
	err := s.db.SelectContext(ctx, &candidates, s.db.Rebind(
		"SELECT "+taskColumns+" FROM tasks WHERE user_id = ? AND status = ? AND started_at IS NOT NULL AND duration_minutes IS NOT NULL ORDER BY position"),
		userID, domain.StatusDoing)
	if err != nil {
		return nil, domain.Persistence("list expired", fmt.Errorf("querying timed tasks of user %d: %w", userID, err))
	}
	return filterExpired(candidates, now), nil
}

// ListAllExpired is ListExpired across every user.
func (s *Storage) ListAllExpired(ctx context.Context, now time.Time) ([]domain.Task, error) {
	var candidates []domain.Task
	err := s.db.SelectContext(ctx, &candidates, s.db.Rebind(
		"SELECT "+taskColumns+" FROM tasks WHERE status = ? AND started_at IS NOT NULL AND duration_minutes IS NOT NULL ORDER BY user_id, position"),
		domain.StatusDoing)
	if err != nil {
		return nil, domain.Persistence("list expired", fmt.Errorf("querying timed tasks: %w", err))
	}
	return filterExpired(candidates, now), nil
}

func filterExpired(tasks []domain.Task, now time.Time) []domain.Task {
	out := []domain.Task{}
	for _, t := range tasks {
		if t.Expired(now) {
			out = append(out, t)
		}
	}
	return out
}

func normalizeDescription(desc *string) *string {
	if desc == nil || *desc == "" {
		return nil
	}
	d := *desc
	return &d
}

func (t *txn) requireUser(ctx context.Context, userID int64) error {
	var n int
	if err := t.GetContext(ctx, &n, t.Rebind("SELECT COUNT(*) FROM users WHERE id = ?"), userID); err != nil {
		return fmt.Errorf("checking user %d: %w", userID, err)
	}
	if n == 0 {
		return domain.NotFound("user", userID)
	}
	return nil
}

// task loads a task owned by the transaction's user.
func (t *txn) task(ctx context.Context, id int64) (domain.Task, error) {
	var task domain.Task
	err := t.GetContext(ctx, &task, t.Rebind("SELECT "+taskColumns+" FROM tasks WHERE id = ? AND user_id = ?"), id, t.userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.NotFound("task", id)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("getting task %d: %w", id, err)
	}
	return task, nil
}
