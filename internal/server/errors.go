package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/semp-project/semp/internal/crypto"
	"github.com/semp-project/semp/internal/identity"
)

// Error is a protocol failure with a client-facing status and code.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrForbidden: a required authentication header is absent.
	ErrForbidden = &Error{http.StatusForbidden, "forbidden", "missing required header"}
	// ErrSignatureExpired: the signed date is outside the freshness window.
	ErrSignatureExpired = &Error{http.StatusUnauthorized, "signature_expired", "signature expired"}
	// ErrUnverifiedSignature: any signature decode or verification failure.
	ErrUnverifiedSignature = &Error{http.StatusUnauthorized, "unverified_signature", "unverified signature"}
	// ErrInvalidIdentity: a name does not parse as @name.host, or a message
	// is addressed to a host this server does not serve.
	ErrInvalidIdentity = &Error{http.StatusBadRequest, "invalid_identity", "invalid user name"}
	// ErrRemoteUnsupported: the peer is down, non-200, or speaks something
	// other than this protocol. The cases are deliberately not distinguished.
	ErrRemoteUnsupported = &Error{http.StatusBadGateway, "remote_unsupported", "remote server does not support semp"}
	// ErrRemoteBanned: a peer's ban list names the local host or user.
	ErrRemoteBanned = &Error{http.StatusForbidden, "remote_banned", "remote server has banned this server or user"}
	// ErrExchangeFailed: outbound delivery got a non-success status.
	ErrExchangeFailed = &Error{http.StatusBadGateway, "exchange_failed", "exchange failed"}
	// ErrUserNotFound: no local record for the addressed user.
	ErrUserNotFound = &Error{http.StatusNotFound, "user_not_found", "user not found"}
)

func invalidFormat(msg string) *Error {
	return &Error{http.StatusBadRequest, "invalid_format", msg}
}

// writeError maps an error to its client-facing response. Unclassified
// failures (storage and the like) surface as a generic error without
// internal detail.
func writeError(w http.ResponseWriter, err error) {
	var perr *Error
	switch {
	case errors.As(err, &perr):
	case errors.Is(err, identity.ErrInvalid):
		perr = ErrInvalidIdentity
	case errors.Is(err, crypto.ErrUnverifiedSignature):
		perr = ErrUnverifiedSignature
	case errors.Is(err, ErrNoUser):
		perr = ErrUserNotFound
	case errors.Is(err, ErrUntrustedGuard):
		perr = &Error{http.StatusForbidden, "forbidden", "untrusted user cannot be restored to trusted"}
	default:
		slog.Error("request failed", "error", err)
		perr = &Error{http.StatusInternalServerError, "internal", "internal error"}
	}

	w.Header().Set("content-type", "application/json")
	w.Header().Set("access-control-allow-origin", "*")
	w.WriteHeader(perr.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":       perr.Code,
		"description": perr.Message,
	})
}
