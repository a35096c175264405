package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Adibmaros/tasks-management/domain"
)

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers can
// work with plain JSON payloads. Requests with invalid gzip payloads are
// rejected with a 400 response.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			gr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return domain.Validationf("invalid gzip body")
			}

			req.Body = &gzipReadCloser{Reader: gr, body: req.Body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.body.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// requireUser resolves the caller from the session cookie, a bearer token or
// a token query parameter (EventSource cannot set headers).
func requireUser(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			userID, err := authenticate(c, auth)
			metricsFrom(c).ObserveAuth(time.Since(start))
			if err != nil {
				metricsFrom(c).SetErrorStage("auth")
				return &domain.AuthError{Msg: "Unauthorized. Please log in."}
			}
			c.Set(userContextKey, userID)
			return next(c)
		}
	}
}

func authenticate(c echo.Context, auth Authenticator) (int64, error) {
	if id, ok := sessionUserID(c); ok {
		return id, nil
	}
	if token, err := bearerTokenFromHeader(c.Request().Header); err == nil {
		return auth.UserIDFromBearer(token)
	} else if err != errMissingAuthorization {
		return 0, err
	}
	if token := c.QueryParam("token"); token != "" {
		return auth.UserIDFromBearer(token)
	}
	return 0, errMissingAuthorization
}

func currentUserID(c echo.Context) int64 {
	id, _ := c.Get(userContextKey).(int64)
	return id
}

// ownUserID resolves a userId named by the request. Zero means the caller;
// anyone else is reported as not found.
func ownUserID(c echo.Context, claimed int64) (int64, error) {
	me := currentUserID(c)
	if claimed == 0 || claimed == me {
		return me, nil
	}
	return 0, domain.NotFound("user", claimed)
}

// PageGuard sends anonymous visitors to /login and signed-in users away from
// the login and register pages.
func PageGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			_, loggedIn := sessionUserID(c)
			path := c.Request().URL.Path
			authPage := path == "/login" || path == "/register"
			switch {
			case !loggedIn && !authPage:
				return c.Redirect(http.StatusFound, "/login")
			case loggedIn && authPage:
				return c.Redirect(http.StatusFound, "/dashboard")
			}
			return next(c)
		}
	}
}
