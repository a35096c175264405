package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Adibmaros/tasks-management/domain"
)

type createTaskRequest struct {
	Name            string  `json:"name"`
	UserID          int64   `json:"userId"`
	Description     *string `json:"description"`
	Status          string  `json:"status"`
	DurationMinutes *int    `json:"durationMinutes"`
}

type updateTaskRequest struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	DurationMinutes *int    `json:"durationMinutes"`
}

type reorderRequest struct {
	TaskID      int64  `json:"taskId"`
	UserID      int64  `json:"userId"`
	NewStatus   string `json:"newStatus"`
	NewPosition *int   `json:"newPosition"`
}

func createTask(store Store, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		userID, err := ownUserID(c, req.UserID)
		if err != nil {
			return err
		}
		in := domain.NewTask{
			UserID:          userID,
			Name:            strings.TrimSpace(req.Name),
			Description:     req.Description,
			DurationMinutes: req.DurationMinutes,
		}
		if req.Status != "" {
			if in.Status, err = domain.ParseStatus(req.Status); err != nil {
				return err
			}
		}
		if err := in.Validate(); err != nil {
			return err
		}

		key := strings.TrimSpace(c.Request().Header.Get(idempotencyHeader))
		if key == "" || deduper == nil {
			task, err := timed(c, func(ctx context.Context) (domain.Task, error) {
				return store.CreateTask(ctx, in)
			})
			if err != nil {
				return err
			}
			return writeJSON(c, http.StatusCreated, task)
		}
		if len(key) > maxIdempotencySize {
			return domain.Validationf("Idempotency-Key too long")
		}
		return createTaskOnce(c, store, deduper, logger, userID, key, in)
	}
}

// createTaskOnce replays the stored response for a repeated key and records
// the response of the first successful attempt.
func createTaskOnce(c echo.Context, store Store, deduper Deduper, logger *log.Logger, userID int64, key string, in domain.NewTask) error {
	ctx := c.Request().Context()
	fields := log.Fields{"user": userID, "idempotency_key": key}

	claimed, stored, err := deduper.Claim(ctx, userID, key)
	switch {
	case err != nil:
		logger.WithError(err).WithFields(fields).Warn("idempotency store unavailable, creating without dedupe")
	case stored != nil:
		return c.JSONBlob(stored.Status, stored.Body)
	case !claimed:
		return echo.NewHTTPError(http.StatusConflict, "a request with this Idempotency-Key is in progress")
	}

	task, err := timed(c, func(ctx context.Context) (domain.Task, error) {
		return store.CreateTask(ctx, in)
	})
	if err != nil {
		if claimed {
			if rerr := deduper.Release(ctx, userID, key); rerr != nil {
				logger.WithError(rerr).WithFields(fields).Warn("releasing idempotency key")
			}
		}
		return err
	}

	body, err := sonicMarshal(task)
	if err != nil {
		return err
	}
	if claimed {
		if cerr := deduper.Complete(ctx, userID, key, StoredResponse{Status: http.StatusCreated, Body: body}); cerr != nil {
			logger.WithError(cerr).WithFields(fields).Warn("storing idempotent response")
		}
	}
	return c.JSONBlob(http.StatusCreated, body)
}

func updateTask(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c, "id")
		if err != nil {
			return err
		}
		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			req.Name = &name
		}
		patch := domain.TaskPatch{Name: req.Name, Description: req.Description, DurationMinutes: req.DurationMinutes}
		task, err := timed(c, func(ctx context.Context) (domain.Task, error) {
			return store.UpdateTask(ctx, currentUserID(c), id, patch)
		})
		if err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, task)
	}
}

func deleteTask(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c, "id")
		if err != nil {
			return err
		}
		if err := timedErr(c, func(ctx context.Context) error {
			return store.DeleteTask(ctx, currentUserID(c), id)
		}); err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, successResponse{Success: true})
	}
}

// transitionTask serves the start, archive and unarchive routes.
func transitionTask(op func(ctx context.Context, userID, id int64) (domain.Task, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c, "id")
		if err != nil {
			return err
		}
		task, err := timed(c, func(ctx context.Context) (domain.Task, error) {
			return op(ctx, currentUserID(c), id)
		})
		if err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, task)
	}
}

func listTasks(list func(ctx context.Context, userID int64) ([]domain.Task, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		claimed, err := pathID(c, "userId")
		if err != nil {
			return err
		}
		userID, err := ownUserID(c, claimed)
		if err != nil {
			return err
		}
		tasks, err := timed(c, func(ctx context.Context) ([]domain.Task, error) {
			return list(ctx, userID)
		})
		if err != nil {
			return err
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		metricsFrom(c).SetItemsReturned(len(tasks))
		return writeJSON(c, http.StatusOK, tasks)
	}
}

func listExpired(store Store, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		claimed, err := queryID(c, "userId")
		if err != nil {
			return err
		}
		userID, err := ownUserID(c, claimed)
		if err != nil {
			return err
		}
		tasks, err := timed(c, func(ctx context.Context) ([]domain.Task, error) {
			return store.ListExpired(ctx, userID, now())
		})
		if err != nil {
			return err
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		metricsFrom(c).SetItemsReturned(len(tasks))
		return writeJSON(c, http.StatusOK, tasks)
	}
}

func reorderTask(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req reorderRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		if req.TaskID == 0 || req.NewStatus == "" || req.NewPosition == nil {
			return domain.Validationf("taskId, newStatus and newPosition are required")
		}
		userID, err := ownUserID(c, req.UserID)
		if err != nil {
			return err
		}
		status, err := domain.ParseStatus(req.NewStatus)
		if err != nil {
			return err
		}
		move := domain.MoveRequest{TaskID: req.TaskID, UserID: userID, NewStatus: status, NewPosition: *req.NewPosition}
		if err := move.Validate(); err != nil {
			return err
		}
		if _, err := timed(c, func(ctx context.Context) (domain.Task, error) {
			return store.Reorder(ctx, move)
		}); err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, successResponse{Success: true})
	}
}
