package manager

import "net/http"

// BusyMessage is returned to callers rejected by admission.
const BusyMessage = "resource busy, please retry later"

// busyError signals that another request holds the engine (503).
type busyError struct{}

func (busyError) Error() string   { return BusyMessage }
func (busyError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrBusy is the admission rejection returned while another request runs.
var ErrBusy error = busyError{}

// IsBusy reports whether err is an admission rejection.
func IsBusy(err error) bool {
	_, ok := err.(busyError)
	return ok
}

// badRequestError carries request validation failures (400).
type badRequestError struct{ msg string }

func (e badRequestError) Error() string   { return e.msg }
func (e badRequestError) StatusCode() int { return http.StatusBadRequest }

func ErrBadRequest(msg string) error { return badRequestError{msg: msg} }

func IsBadRequest(err error) bool {
	_, ok := err.(badRequestError)
	return ok
}

// engineUnavailableError signals the engine is closed or failed to start,
// so the HTTP layer can return 503 instead of 500.
type engineUnavailableError struct{ msg string }

func (e engineUnavailableError) Error() string   { return e.msg }
func (e engineUnavailableError) StatusCode() int { return http.StatusServiceUnavailable }

// ErrEngineUnavailable constructs an engineUnavailableError.
func ErrEngineUnavailable(msg string) error { return engineUnavailableError{msg: msg} }

// IsEngineUnavailable reports whether err indicates the engine cannot serve.
func IsEngineUnavailable(err error) bool {
	_, ok := err.(engineUnavailableError)
	return ok
}
