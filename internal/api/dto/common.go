package dto

// ErrorResponse is the uniform error body. Authorization failures always use
// the same generic message so callers cannot distinguish "not a member" from
// "suspended" or "no such school"; Details is only populated for validation
// errors on the caller's own input.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}
