package httpx

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/tansive/tenancy/internal/common/apperrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Error represents an HTTP error response with status code and description.
type Error struct {
	Description string `json:"description"`
	StatusCode  int    `json:"http_status_code"`
}

type errorRsp struct {
	Result int    `json:"result"`
	Error  string `json:"error"`
}

// Failure represents the error result code in error responses.
const Failure int = 0

// Send writes the error response to the provided ResponseWriter.
// If the writer is nil, no action is taken.
func (e *Error) Send(w http.ResponseWriter) {
	if w == nil {
		return
	}
	rspJson, err := json.Marshal(&errorRsp{Result: Failure, Error: e.Description})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Unable to parse error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	w.Write(rspJson)
}

// Error returns the error description.
func (e *Error) Error() string {
	return e.Description
}

// StatusCode maps an application exit code to the HTTP status reported for it.
func StatusCode(exitCode int) int {
	switch exitCode {
	case apperrors.ExitOK:
		return http.StatusOK
	case apperrors.ExitNotFound:
		return http.StatusNotFound
	case apperrors.ExitInvalidInput:
		return http.StatusBadRequest
	case apperrors.ExitConflict:
		return http.StatusConflict
	case apperrors.ExitConnectivity:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// SendError sends err as an HTTP error response. The status is derived from the exit code
// of an apperrors.Error; anything else is a 500.
func SendError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var httpErr *Error
	if errors.As(err, &httpErr) {
		httpErr.Send(w)
		return
	}
	var appErr apperrors.Error
	if errors.As(err, &appErr) {
		(&Error{
			StatusCode:  StatusCode(appErr.ExitCode()),
			Description: appErr.Error(),
		}).Send(w)
		return
	}
	ErrApplicationError().Send(w)
}

// ErrApplicationError returns an internal server error. An optional message replaces the
// default description.
func ErrApplicationError(err ...string) *Error {
	description := "unable to process request"
	if len(err) > 0 && err[0] != "" {
		description = err[0]
	}
	return &Error{
		Description: description,
		StatusCode:  http.StatusInternalServerError,
	}
}

// ErrUnknownHost returns an error for a request whose host is not bound to any website.
func ErrUnknownHost(host string) *Error {
	return &Error{
		Description: "unknown host " + host,
		StatusCode:  http.StatusNotFound,
	}
}

// ErrRequestTimeout returns an error for requests that time out.
func ErrRequestTimeout() *Error {
	return &Error{
		Description: "request timed out",
		StatusCode:  http.StatusServiceUnavailable,
	}
}
