package middlewares

import (
	"fmt"
	"net/http"

	"github.com/civicvault/syncd/internal/syncerr"
	"github.com/gofrs/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// HTTPErrorHandler is a middleware that formats rendered errors.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	switch e := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if e.Internal != nil {
			logrus.WithError(e.Internal).Warn("echo error")
		}
		_ = c.JSON(e.Code, echo.Map{
			"error": echo.Map{
				"message": e.Message,
			},
		})
	case *syncerr.Error:
		status := syncerr.StatusCode(e)
		if status < 500 {
			_ = c.JSON(status, e)
			return
		}

		internal(err, c)
	default:
		internal(err, c)
	}
}

func internal(err error, c echo.Context) {
	id := uuid.Must(uuid.NewV4()).String()
	logrus.WithField("error_id", id).WithError(err).Error("unexpected error")

	status := syncerr.StatusCode(err)
	if status < 500 {
		status = http.StatusInternalServerError
	}
	_ = c.JSON(status, echo.Map{
		"error": echo.Map{
			"tag":     syncerr.KindOf(err),
			"message": fmt.Sprintf("Unexpected error (id: %s)", id),
		},
	})
}
