package errs

import "github.com/TonyMarkham/opencode-tauri/internal/httpstatus"

// IsRetryable is defined only on the AuthSync family: it derives from
// either the HTTP status classifier over a stored status code or
// explicit network-layer flags. Any other family reports false — string
// matching on messages is deliberately never used here.
func (e *Error) IsRetryable() bool {
	if e == nil || e.Family != FamilyAuthSync {
		return false
	}
	if e.isTimeout || e.isConnection {
		return true
	}
	if e.hasHTTP {
		return httpstatus.IsRetryable(e.httpStatus)
	}
	return false
}
