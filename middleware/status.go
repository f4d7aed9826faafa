package middleware

import (
	"encoding/json"
	"net/http"

	goToken "github.com/MrEthical07/goToken"
)

// StatusFor maps an Engine error to an HTTP status code. Unknown errors are 500.
func StatusFor(err error) int {
	switch goToken.KindOf(err) {
	case goToken.KindTokenMalformed,
		goToken.KindTokenSignatureInvalid,
		goToken.KindTokenExpired,
		goToken.KindTokenInvalid,
		goToken.KindTokenAlreadyUsedOrRevoked,
		goToken.KindClaimMissing:
		return http.StatusUnauthorized
	case goToken.KindAccountNotUsable:
		return http.StatusForbidden
	case goToken.KindTokenNotFound, goToken.KindUserNotFound:
		return http.StatusNotFound
	case goToken.KindRateLimited:
		return http.StatusTooManyRequests
	case goToken.KindUnavailable, goToken.KindEngineNotReady:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON error payload. Code is the goToken error kind.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteError writes err as JSON with the status from [StatusFor]. Messages of
// foreign errors are not echoed.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	kind := goToken.KindOf(err)
	msg := http.StatusText(status)
	if kind != goToken.KindUnknown {
		msg = err.Error()
		if kind == goToken.KindUnavailable {
			msg = goToken.ErrUnavailable.Error()
		}
	}
	writeBody(w, status, ErrorBody{Error: msg, Code: kind.String()})
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	writeBody(w, status, ErrorBody{Error: http.StatusText(status), Code: code})
}

func writeBody(w http.ResponseWriter, status int, body ErrorBody) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="goToken"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
