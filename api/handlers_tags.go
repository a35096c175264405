package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Adibmaros/tasks-management/domain"
)

type createTagRequest struct {
	Name   string `json:"name"`
	Color  string `json:"color"`
	UserID int64  `json:"userId"`
}

type updateTagRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

type taskTagRequest struct {
	TaskID int64 `json:"taskId"`
	TagID  int64 `json:"tagId"`
}

func createTag(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createTagRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		userID, err := ownUserID(c, req.UserID)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return domain.Validationf("name and userId are required")
		}
		tag, err := timed(c, func(ctx context.Context) (domain.Tag, error) {
			return store.CreateTag(ctx, userID, name, strings.TrimSpace(req.Color))
		})
		if err != nil {
			return err
		}
		return writeJSON(c, http.StatusCreated, tag)
	}
}

func updateTag(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c, "id")
		if err != nil {
			return err
		}
		var req updateTagRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		tag, err := timed(c, func(ctx context.Context) (domain.Tag, error) {
			return store.UpdateTag(ctx, currentUserID(c), id, domain.TagPatch{Name: req.Name, Color: req.Color})
		})
		if err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, tag)
	}
}

func deleteTag(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c, "id")
		if err != nil {
			return err
		}
		if err := timedErr(c, func(ctx context.Context) error {
			return store.DeleteTag(ctx, currentUserID(c), id)
		}); err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, messageResponse{Message: "Tag deleted successfully"})
	}
}

func listTags(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		claimed, err := pathID(c, "userId")
		if err != nil {
			return err
		}
		userID, err := ownUserID(c, claimed)
		if err != nil {
			return err
		}
		tags, err := timed(c, func(ctx context.Context) ([]domain.Tag, error) {
			return store.ListTags(ctx, userID)
		})
		if err != nil {
			return err
		}
		if tags == nil {
			tags = []domain.Tag{}
		}
		metricsFrom(c).SetItemsReturned(len(tags))
		return writeJSON(c, http.StatusOK, tags)
	}
}

func addTaskTag(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req taskTagRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		if req.TaskID <= 0 || req.TagID <= 0 {
			return domain.Validationf("taskId and tagId are required")
		}
		link, err := timed(c, func(ctx context.Context) (domain.TaskTagWithTag, error) {
			return store.AddTaskTag(ctx, currentUserID(c), req.TaskID, req.TagID)
		})
		if err != nil {
			return err
		}
		return writeJSON(c, http.StatusCreated, link)
	}
}

func removeTaskTag(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		taskID, err := queryID(c, "taskId")
		if err != nil {
			return err
		}
		tagID, err := queryID(c, "tagId")
		if err != nil {
			return err
		}
		if taskID == 0 || tagID == 0 {
			return domain.Validationf("taskId and tagId are required")
		}
		if err := timedErr(c, func(ctx context.Context) error {
			return store.RemoveTaskTag(ctx, currentUserID(c), taskID, tagID)
		}); err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, successResponse{Success: true})
	}
}

func listTaskTags(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		taskID, err := queryID(c, "taskId")
		if err != nil {
			return err
		}
		if taskID == 0 {
			return domain.Validationf("taskId is required")
		}
		tags, err := timed(c, func(ctx context.Context) ([]domain.Tag, error) {
			return store.ListTaskTags(ctx, currentUserID(c), taskID)
		})
		if err != nil {
			return err
		}
		if tags == nil {
			tags = []domain.Tag{}
		}
		metricsFrom(c).SetItemsReturned(len(tags))
		return writeJSON(c, http.StatusOK, tags)
	}
}
