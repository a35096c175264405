package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Adibmaros/tasks-management/domain"
)

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an error onto an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	var (
		validation  *domain.ValidationError
		auth        *domain.AuthError
		notFound    *domain.NotFoundError
		conflict    *domain.ConflictError
		persistence *domain.PersistenceError
		httpErr     *echo.HTTPError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Msg
	case errors.As(err, &auth):
		return http.StatusUnauthorized, auth.Msg
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error()
	case errors.As(err, &conflict):
		return http.StatusBadRequest, conflict.Msg
	case errors.As(err, &persistence):
		return http.StatusInternalServerError, "internal server error"
	case errors.As(err, &httpErr):
		return httpErr.Code, fmt.Sprint(httpErr.Message)
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.WithError(err).WithFields(log.Fields{
				"method": c.Request().Method,
				"route":  c.Path(),
			}).Error("request failed")
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, errorBody{Error: msg})
		}
		if err != nil {
			logger.WithError(err).Warn("writing error response")
		}
	}
}
