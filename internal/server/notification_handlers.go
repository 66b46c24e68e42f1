package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/civicvault/syncd/internal/notify"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	keepAlive    = 30 * time.Second
	writeTimeout = 10 * time.Second
)

type notifications struct {
	registry notify.Registry
	upgrader websocket.Upgrader
}

// Stream pushes the current user's events as server-sent events until the client leaves.
func (h *notifications) Stream(c echo.Context) error {
	subscription := h.registry.Subscribe(currentUserID(c))
	defer subscription.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return nil
	}
	w.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case event, ok := <-subscription.Events():
			if !ok {
				return nil
			}

			payload, err := json.Marshal(event)
			if err != nil {
				return errors.Wrap(err, "could not serialize event")
			}
			if _, err = fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// WebSocket pushes the current user's events as JSON text frames.
// Frames sent by the client are discarded.
func (h *notifications) WebSocket(c echo.Context) error {
	userID := currentUserID(c)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the client.
		logrus.WithError(err).WithField("user_id", userID).Debug("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	subscription := h.registry.Subscribe(userID)
	defer subscription.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return nil
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return nil
			}
		case event, ok := <-subscription.Events():
			if !ok {
				return nil
			}

			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return nil
			}
			if err := conn.WriteJSON(event); err != nil {
				return nil
			}
		}
	}
}
