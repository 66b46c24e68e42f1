package middlewares

import (
	"net/http"

	"github.com/civicvault/syncd/internal/syncerr"
	"github.com/labstack/echo/v4"
)

type binder struct {
	echo.DefaultBinder
	methodsWithBody map[string]bool
}

// NewBinder returns a wrapp of the default binder implementation with extra checks.
// Binding failures are rendered as validation errors.
func NewBinder() echo.Binder {
	return &binder{
		methodsWithBody: map[string]bool{
			http.MethodPost:  true,
			http.MethodPatch: true,
			http.MethodPut:   true,
		},
	}
}

// Bind implements the echo.Bind interface.
func (b *binder) Bind(i any, c echo.Context) error {
	if c.Request().ContentLength == 0 && b.methodsWithBody[c.Request().Method] {
		return syncerr.Validation("Request body can't be empty.")
	}

	if err := b.DefaultBinder.Bind(i, c); err != nil {
		if he, ok := err.(*echo.HTTPError); ok && he.Code == http.StatusBadRequest {
			return syncerr.Validation("Malformed request body.")
		}
		return err
	}
	return nil
}
