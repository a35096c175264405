package api

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const (
	sessionName    = "taskboard_session"
	sessionUserKey = "uid"
	userContextKey = "user_id"
	sessionMaxAge  = 7 * 24 * 60 * 60
)

// Sessions returns the cookie session middleware.
func Sessions(secret []byte, secure bool) echo.MiddlewareFunc {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return session.Middleware(store)
}

func sessionUserID(c echo.Context) (int64, bool) {
	sess, err := session.Get(sessionName, c)
	if err != nil || sess == nil {
		return 0, false
	}
	id, ok := sess.Values[sessionUserKey].(int64)
	return id, ok && id > 0
}

func startSession(c echo.Context, userID int64) error {
	sess, err := session.Get(sessionName, c)
	if sess == nil {
		return err
	}
	sess.Values[sessionUserKey] = userID
	return sess.Save(c.Request(), c.Response())
}

func endSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if sess == nil {
		return err
	}
	opts := sessions.Options{Path: "/"}
	if sess.Options != nil {
		opts = *sess.Options
	}
	opts.MaxAge = -1
	sess.Options = &opts
	delete(sess.Values, sessionUserKey)
	return sess.Save(c.Request(), c.Response())
}
