package server_test

import (
	"net/http"
	"testing"

	"github.com/appleboy/gofight/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func TestRequestBlobPut(t *testing.T) {
	engine, ctrl, r := setup(t)
	header := authorization(ctrl, "u1")

	r.PUT("/blobs/settings").SetHeader(header).SetJSON(gofight.D{
		"ciphertext": "c1",
		"nonce":      "n1",
		"mac":        "m1",
	}).Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusBadRequest, r.Code)
		assert.JSONEq(t, `{"error":{"tag":"invalid-parameters","message":"Field version is required."}}`, r.Body.String())
	})

	r.PUT("/blobs/settings").SetHeader(header).SetJSON(gofight.D{
		"ciphertext": "c1",
		"nonce":      "n1",
		"mac":        "m1",
		"version":    "one",
	}).Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusBadRequest, r.Code)
	})

	// Versions are accepted as strings.
	r.PUT("/blobs/settings").SetHeader(header).SetJSON(gofight.D{
		"ciphertext": "c1",
		"nonce":      "n1",
		"mac":        "m1",
		"version":    "1",
	}).Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusOK, r.Code)
		assert.JSONEq(t, `{"key":"settings","version":1}`, r.Body.String())
	})

	r.PUT("/blobs/settings").SetHeader(header).SetJSON(gofight.D{
		"ciphertext": "c2",
		"nonce":      "n2",
		"mac":        "m2",
		"aad":        "header",
		"version":    2,
	}).Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusOK, r.Code)
		assert.JSONEq(t, `{"key":"settings","version":2}`, r.Body.String())
	})

	// Stale write.
	r.PUT("/blobs/settings").SetHeader(header).SetJSON(gofight.D{
		"ciphertext": "c3",
		"nonce":      "n3",
		"mac":        "m3",
		"version":    2,
	}).Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusConflict, r.Code)
		assert.JSONEq(t, `{"error":{"tag":"version-conflict","message":"Blob settings is at version 2, got version 2."}}`, r.Body.String())
	})

	r.PUT("/blobs/settings").SetHeader(header).SetJSON(gofight.D{
		"ciphertext":      "c3",
		"nonce":           "n3",
		"mac":             "m3",
		"version":         3,
		"expectedVersion": 1,
	}).Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusConflict, r.Code)
		assert.JSONEq(t, `{"error":{"tag":"version-conflict","message":"Blob settings is at version 2, expected version 1."}}`, r.Body.String())
	})

	r.GET("/blobs/settings").SetHeader(header).Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusOK, r.Code)

		v, err := fastjson.Parse(r.Body.String())
		require.NoError(t, err)
		assert.Equal(t, "u1", string(v.GetStringBytes("userId")))
		assert.Equal(t, "c2", string(v.GetStringBytes("ciphertext")))
		assert.Equal(t, "header", string(v.GetStringBytes("aad")))
		assert.Equal(t, 2, v.GetInt("version"))
	})
}

func TestRequestBlobNamespaces(t *testing.T) {
	engine, ctrl, r := setup(t)
	header := authorization(ctrl, "u1")

	for _, uri := range []string{"/blobs/keys", "/blobs/keys?namespace=vault"} {
		r.PUT(uri).SetHeader(header).SetJSON(gofight.D{
			"ciphertext": "c",
			"nonce":      "n",
			"mac":        "m",
			"version":    1,
		}).Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
			require.Equal(t, http.StatusOK, r.Code)
		})
	}

	r.GET("/blobs/list").SetHeader(header).Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusOK, r.Code)
		assert.JSONEq(t, `{"blobs":[
			{"namespace":"default","itemKey":"keys","version":1,"aad":null},
			{"namespace":"vault","itemKey":"keys","version":1,"aad":null}
		]}`, r.Body.String())
	})

	r.GET("/blobs/keys?namespace=other").SetHeader(header).Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusNotFound, r.Code)
		assert.JSONEq(t, `{"error":{"tag":"not-found","message":"Blob not found"}}`, r.Body.String())
	})

	// Blobs are private.
	r.GET("/blobs/keys").SetHeader(authorization(ctrl, "u2")).Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusNotFound, r.Code)
	})

	r.GET("/blobs/list").SetHeader(authorization(ctrl, "u2")).Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusOK, r.Code)
		assert.JSONEq(t, `{"blobs":[]}`, r.Body.String())
	})
}
