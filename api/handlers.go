package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Adibmaros/tasks-management/domain"
)

const healthTimeout = 2 * time.Second

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Log == nil {
		d.Log = log.StandardLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	e.JSONSerializer = sonicSerializer{}
	e.HTTPErrorHandler = errorHandler(d.Log)
	e.Use(Sessions(d.SessionSecret, d.SecureCookies))
	e.Use(GzipRequestMiddleware())

	e.GET("/healthz", healthz(d.Store, d.Health))

	guard := PageGuard()
	for _, p := range []string{"/", "/login", "/register", "/dashboard"} {
		e.GET(p, func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, guard)
	}

	api := e.Group("/api", observe(d.Log))
	api.POST("/auth/register", register(d.Store))
	api.POST("/auth/login", login(d.Store, d.Auth))
	api.POST("/auth/logout", logout())

	authed := requireUser(d.Auth)
	api.GET("/auth/me", me(d.Store), authed)
	api.POST("/auth/change-password", changePassword(d.Store), authed)

	api.POST("/tasks", createTask(d.Store, d.Deduper, d.Log), authed)
	api.PUT("/tasks/:id", updateTask(d.Store), authed)
	api.DELETE("/tasks/:id", deleteTask(d.Store), authed)
	api.PUT("/tasks/:id/start", transitionTask(d.Store.StartTask), authed)
	api.PUT("/tasks/:id/archive", transitionTask(d.Store.ArchiveTask), authed)
	api.PUT("/tasks/:id/unarchive", transitionTask(d.Store.UnarchiveTask), authed)
	api.GET("/tasks/user/:userId", listTasks(d.Store.ListBoard), authed)
	api.GET("/tasks/user/:userId/archived", listTasks(d.Store.ListArchived), authed)
	api.GET("/tasks/expired", listExpired(d.Store, d.Now), authed)
	api.POST("/tasks/reorder", reorderTask(d.Store), authed)

	api.POST("/tags", createTag(d.Store), authed)
	api.PUT("/tags/:id", updateTag(d.Store), authed)
	api.DELETE("/tags/:id", deleteTag(d.Store), authed)
	api.GET("/tags/user/:userId", listTags(d.Store), authed)

	api.POST("/task-tags", addTaskTag(d.Store), authed)
	api.DELETE("/task-tags", removeTaskTag(d.Store), authed)
	api.GET("/task-tags", listTaskTags(d.Store), authed)

	api.GET("/realtime", streamChanges(d.Feed, d.PingInterval, d.Log), authed)
}

type healthResponse struct {
	Status string   `json:"status"`
	Failed []string `json:"failed,omitempty"`
}

func healthz(store Store, checks map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		var failed []string
		if err := store.Ping(ctx); err != nil {
			failed = append(failed, "database")
		}
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				failed = append(failed, name)
			}
		}
		if len(failed) > 0 {
			sort.Strings(failed)
			return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Failed: failed})
		}
		return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
	}
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("invalid %s", name)
	}
	return id, nil
}

func queryID(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("invalid %s", name)
	}
	return id, nil
}

type successResponse struct {
	Success bool `json:"success"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// timed runs a store call and records its latency.
func timed[T any](c echo.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := fn(c.Request().Context())
	metricsFrom(c).ObserveStore(time.Since(start))
	if err != nil {
		metricsFrom(c).SetErrorStage("storage")
	}
	return v, err
}

func timedErr(c echo.Context, fn func(ctx context.Context) error) error {
	_, err := timed(c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
