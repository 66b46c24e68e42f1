package server

import (
	"net/http"

	"github.com/civicvault/syncd/internal/syncqueue"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type syncq struct {
	queue *syncqueue.Queue
}

// Enqueue appends one mutation to the current user's queue.
func (h *syncq) Enqueue(c echo.Context) error {
	var params syncqueue.EnqueueParams
	if err := c.Bind(&params); err != nil {
		return errors.Wrap(err, "could not get queue params")
	}

	item, err := h.queue.Enqueue(currentUserID(c), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

// Pending lists the items waiting for a drain.
func (h *syncq) Pending(c echo.Context) error {
	items, err := h.queue.ListPending(currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

// Process drains the current user's queue.
func (h *syncq) Process(c echo.Context) error {
	result, err := h.queue.Drain(c.Request().Context(), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Status returns the queue counters and the devices of the current user.
func (h *syncq) Status(c echo.Context) error {
	status, err := h.queue.Status(currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

// Cleanup purges old completed items of every user.
func (h *syncq) Cleanup(c echo.Context) error {
	n, err := h.queue.Cleanup()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"deleted": n,
	})
}
