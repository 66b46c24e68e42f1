package server

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// This file is only for test purpose and is only loaded by test framework.

// TokenForUser returns a signed access token whose subject is userID.
func TokenForUser(ctrl Controller, userID string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
	})

	s, err := token.SignedString(ctrl.SigningKey)
	if err != nil {
		panic(err)
	}
	return s
}
