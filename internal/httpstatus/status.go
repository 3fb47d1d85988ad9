// Package httpstatus classifies numeric HTTP status codes for retry and
// error-family decisions shared by the backend HTTP client and the
// credential sync retry policy.
package httpstatus

// IsClientError reports whether status is in the 4xx range.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// IsServerError reports whether status is in the 5xx range.
func IsServerError(status int) bool {
	return status >= 500 && status < 600
}

var retryable = map[int]bool{
	429: true,
	502: true,
	503: true,
	504: true,
}

// IsRetryable reports whether a request that failed with status should
// be retried by a caller using exponential backoff.
func IsRetryable(status int) bool {
	return retryable[status]
}
