package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/civicvault/syncd/internal/blobstore"
	"github.com/civicvault/syncd/internal/syncerr"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type blobs struct {
	store *blobstore.Store
}

// A blobParams is the body of a blob write.
// Versions are accepted as JSON numbers or numeric strings.
type blobParams struct {
	Ciphertext      string      `json:"ciphertext"`
	Nonce           string      `json:"nonce"`
	MAC             string      `json:"mac"`
	AAD             *string     `json:"aad"`
	Version         json.Number `json:"version"`
	ExpectedVersion json.Number `json:"expectedVersion"`
}

// List returns the descriptors of all the current user's blobs.
func (h *blobs) List(c echo.Context) error {
	descriptors, err := h.store.List(currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"blobs": descriptors,
	})
}

// Show returns one blob of the current user.
func (h *blobs) Show(c echo.Context) error {
	blob, err := h.store.Get(currentUserID(c), c.QueryParam("namespace"), c.Param("key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, blob)
}

// Put writes one blob of the current user, bypassing the queue.
func (h *blobs) Put(c echo.Context) error {
	var params blobParams
	if err := c.Bind(&params); err != nil {
		return errors.Wrap(err, "could not get blob params")
	}

	version, err := parseVersion("version", params.Version)
	if err != nil {
		return err
	}
	if version == nil {
		return syncerr.Validation("Field version is required.")
	}

	expected, err := parseVersion("expectedVersion", params.ExpectedVersion)
	if err != nil {
		return err
	}

	blob, err := h.store.Put(currentUserID(c), c.QueryParam("namespace"), c.Param("key"), blobstore.PutParams{
		Ciphertext:      params.Ciphertext,
		Nonce:           params.Nonce,
		MAC:             params.MAC,
		AAD:             params.AAD,
		Version:         *version,
		ExpectedVersion: expected,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"key":     blob.ItemKey,
		"version": blob.Version,
	})
}

func parseVersion(field string, n json.Number) (*int64, error) {
	if n == "" {
		return nil, nil
	}

	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return nil, syncerr.Validation("Field %s must be an integer.", field)
	}
	return &v, nil
}
