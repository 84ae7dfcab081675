package api

import (
	"errors"
	"net/http"

	"github.com/screa/d3caf/pkg/auction"
)

// errorCodes maps auction errors to wire codes and HTTP statuses. Order matters:
// ErrAlreadyRegistered also matches ErrBadValue.
var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{auction.ErrAlreadyRegistered, "already_registered", http.StatusConflict},
	{auction.ErrNotFound, "not_found", http.StatusNotFound},
	{auction.ErrAlreadySettled, "already_settled", http.StatusConflict},
	{auction.ErrExpired, "expired", http.StatusPreconditionFailed},
	{auction.ErrNotYetExpired, "not_yet_expired", http.StatusPreconditionFailed},
	{auction.ErrImproved, "improved", http.StatusPreconditionFailed},
	{auction.ErrNotImproving, "not_improving", http.StatusOK},
	{auction.ErrSaltMismatch, "salt_mismatch", http.StatusForbidden},
	{auction.ErrUnauthorized, "unauthorized", http.StatusForbidden},
	{auction.ErrBadValue, "bad_value", http.StatusBadRequest},
}

const codeInternal = "internal"

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func classify(err error) (string, int) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code, c.status
		}
	}
	return codeInternal, http.StatusInternalServerError
}

func errorForCode(code string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
