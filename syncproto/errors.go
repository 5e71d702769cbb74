package syncproto

import (
	"errors"
	"net/http"

	"github.com/subconsciousnetwork/noosphere-sub002/sphere"
	"github.com/subconsciousnetwork/noosphere-sub002/token"
)

var (
	// ErrIdentifyInvalid is returned when a gateway's /identify response
	// fails any of the checks spec.md §4.10's identify phase requires.
	ErrIdentifyInvalid = errors.New("syncproto: gateway identify response failed verification")

	// ErrWrongCounterpart is returned when a push names a sphere other
	// than the gateway's configured counterpart.
	ErrWrongCounterpart = errors.New("syncproto: sphere is not this gateway's counterpart")

	// ErrConflict is returned when a push's declared base diverges from
	// the gateway's recorded tip, spec.md §4.10's 409 response.
	ErrConflict = errors.New("syncproto: push base diverges from gateway tip")

	// ErrMalformedRequest covers headers or envelopes that do not parse,
	// spec.md §6's 400 response.
	ErrMalformedRequest = errors.New("syncproto: malformed request")

	// ErrUnauthorized covers a missing or invalid bearer, spec.md §6's
	// 401 response.
	ErrUnauthorized = errors.New("syncproto: missing or unauthorized bearer token")

	// ErrRecoveryExhausted is returned when SyncRecovery's retry budget is
	// spent without a successful push.
	ErrRecoveryExhausted = errors.New("syncproto: conflict recovery retries exhausted")
)

// statusForError maps an error surfaced by the gateway handlers to the
// HTTP status spec.md §6 assigns it.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, token.ErrCapabilityDenied), errors.Is(err, sphere.ErrCapabilityDenied):
		return http.StatusUnauthorized
	case errors.Is(err, ErrWrongCounterpart):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, sphere.ErrNoLocalLineage):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// errorFromStatus reconstructs the sentinel a client should see for an
// HTTP status the gateway returned, used when the client only has the
// status code (not the gateway's internal error value) to go on.
func errorFromStatus(status int, body string) error {
	switch status {
	case http.StatusBadRequest:
		return errors.New("syncproto: " + body)
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrWrongCounterpart
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		return sphere.ErrNoLocalLineage
	default:
		return errors.New("syncproto: gateway error: " + body)
	}
}
