package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Adibmaros/tasks-management/domain"
	"github.com/Adibmaros/tasks-management/realtime"
)

const tagColumns = "id, user_id, name, color, created_at"

// CreateTag inserts a tag, defaulting its color.
func (s *Storage) CreateTag(ctx context.Context, userID int64, name, color string) (domain.Tag, error) {
	if userID <= 0 {
		return domain.Tag{}, domain.Validationf("userId is required")
	}
	if strings.TrimSpace(name) == "" {
		return domain.Tag{}, domain.Validationf("name is required")
	}
	if color == "" {
		color = domain.DefaultTagColor
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return domain.Tag{}, err
	}

	tag := domain.Tag{UserID: userID, Name: name, Color: color, CreatedAt: s.now()}
	err := s.db.GetContext(ctx, &tag.ID, s.db.Rebind(
		"INSERT INTO tags (user_id, name, color, created_at) VALUES (?, ?, ?, ?) RETURNING id"),
		tag.UserID, tag.Name, tag.Color, tag.CreatedAt)
	if err != nil {
		return domain.Tag{}, domain.Persistence("create tag", fmt.Errorf("inserting tag: %w", err))
	}
	return tag, nil
}

// GetTag returns a tag owned by userID.
func (s *Storage) GetTag(ctx context.Context, userID, id int64) (domain.Tag, error) {
	var tag domain.Tag
	err := s.db.GetContext(ctx, &tag, s.db.Rebind("SELECT "+tagColumns+" FROM tags WHERE id = ? AND user_id = ?"), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Tag{}, domain.NotFound("tag", id)
	}
	if err != nil {
		return domain.Tag{}, domain.Persistence("get tag", fmt.Errorf("getting tag %d: %w", id, err))
	}
	return tag, nil
}

// UpdateTag applies a partial update to a tag.
func (s *Storage) UpdateTag(ctx context.Context, userID, id int64, patch domain.TagPatch) (domain.Tag, error) {
	if err := patch.Validate(); err != nil {
		return domain.Tag{}, err
	}
	tag, err := s.GetTag(ctx, userID, id)
	if err != nil {
		return domain.Tag{}, err
	}
	if patch.Name != nil {
		tag.Name = *patch.Name
	}
	if patch.Color != nil {
		tag.Color = *patch.Color
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE tags SET name = ?, color = ? WHERE id = ? AND user_id = ?"),
		tag.Name, tag.Color, id, userID)
	if err != nil {
		return domain.Tag{}, domain.Persistence("update tag", fmt.Errorf("updating tag %d: %w", id, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Tag{}, domain.NotFound("tag", id)
	}
	return tag, nil
}

// DeleteTag removes a tag together with its links to tasks.
func (s *Storage) DeleteTag(ctx context.Context, userID, id int64) error {
	return s.withUserTx(ctx, userID, "delete tag", func(t *txn) error {
		var links []domain.TaskTag
		if err := t.SelectContext(ctx, &links, t.Rebind("SELECT task_id, tag_id FROM task_tags WHERE tag_id = ?"), id); err != nil {
			return fmt.Errorf("listing links of tag %d: %w", id, err)
		}
		if _, err := t.ExecContext(ctx, t.Rebind("DELETE FROM task_tags WHERE tag_id = ? AND tag_id IN (SELECT id FROM tags WHERE user_id = ?)"), id, userID); err != nil {
			return fmt.Errorf("deleting links of tag %d: %w", id, err)
		}
		res, err := t.ExecContext(ctx, t.Rebind("DELETE FROM tags WHERE id = ? AND user_id = ?"), id, userID)
		if err != nil {
			return fmt.Errorf("deleting tag %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NotFound("tag", id)
		}
		for _, l := range links {
			if err := t.record(realtime.TableTaskTags, realtime.KindDelete, nil, l); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListTags returns the user's tags, newest first.
func (s *Storage) ListTags(ctx context.Context, userID int64) ([]domain.Tag, error) {
	tags := []domain.Tag{}
	err := s.db.SelectContext(ctx, &tags, s.db.Rebind("SELECT "+tagColumns+" FROM tags WHERE user_id = ? ORDER BY created_at DESC, id DESC"), userID)
	if err != nil {
		return nil, domain.Persistence("list tags", fmt.Errorf("querying tags of user %d: %w", userID, err))
	}
	return tags, nil
}

// AddTaskTag links a tag to a task; both must belong to userID.
func (s *Storage) AddTaskTag(ctx context.Context, userID, taskID, tagID int64) (domain.TaskTagWithTag, error) {
	if taskID <= 0 || tagID <= 0 {
		return domain.TaskTagWithTag{}, domain.Validationf("taskId and tagId are required")
	}
	var link domain.TaskTagWithTag
	err := s.withUserTx(ctx, userID, "add task tag", func(t *txn) error {
		if _, err := t.task(ctx, taskID); err != nil {
			return err
		}
		var tag domain.Tag
		err := t.GetContext(ctx, &tag, t.Rebind("SELECT "+tagColumns+" FROM tags WHERE id = ? AND user_id = ?"), tagID, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("tag", tagID)
		}
		if err != nil {
			return fmt.Errorf("getting tag %d: %w", tagID, err)
		}

		var n int
		if err := t.GetContext(ctx, &n, t.Rebind("SELECT COUNT(*) FROM task_tags WHERE task_id = ? AND tag_id = ?"), taskID, tagID); err != nil {
			return fmt.Errorf("checking link: %w", err)
		}
		if n > 0 {
			return &domain.ConflictError{Msg: "Tag already added to task."}
		}
		if _, err := t.ExecContext(ctx, t.Rebind("INSERT INTO task_tags (task_id, tag_id) VALUES (?, ?)"), taskID, tagID); err != nil {
			return fmt.Errorf("linking tag %d to task %d: %w", tagID, taskID, err)
		}
		link = domain.TaskTagWithTag{TaskTag: domain.TaskTag{TaskID: taskID, TagID: tagID}, Tag: tag}
		return t.record(realtime.TableTaskTags, realtime.KindInsert, link.TaskTag, nil)
	})
	return link, err
}

// RemoveTaskTag unlinks a tag from a task owned by userID.
func (s *Storage) RemoveTaskTag(ctx context.Context, userID, taskID, tagID int64) error {
	return s.withUserTx(ctx, userID, "remove task tag", func(t *txn) error {
		if _, err := t.task(ctx, taskID); err != nil {
			return err
		}
		res, err := t.ExecContext(ctx, t.Rebind("DELETE FROM task_tags WHERE task_id = ? AND tag_id = ?"), taskID, tagID)
		if err != nil {
			return fmt.Errorf("unlinking tag %d from task %d: %w", tagID, taskID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NotFound("task tag", 0)
		}
		return t.record(realtime.TableTaskTags, realtime.KindDelete, nil, domain.TaskTag{TaskID: taskID, TagID: tagID})
	})
}

// ListTaskTags returns the tags linked to a task owned by userID.
func (s *Storage) ListTaskTags(ctx context.Context, userID, taskID int64) ([]domain.Tag, error) {
	if _, err := s.GetTask(ctx, userID, taskID); err != nil {
		return nil, err
	}
	tags := []domain.Tag{}
	err := s.db.SelectContext(ctx, &tags, s.db.Rebind(`
		SELECT tags.id, tags.user_id, tags.name, tags.color, tags.created_at
		FROM tags JOIN task_tags ON task_tags.tag_id = tags.id
		WHERE task_tags.task_id = ?
		ORDER BY tags.name`), taskID)
	if err != nil {
		return nil, domain.Persistence("list task tags", fmt.Errorf("querying tags of task %d: %w", taskID, err))
	}
	return tags, nil
}
