package models

import "fmt"

// ConflictError describes a rejected versioned update. It carries both the
// server's committed state and the client's submitted state so a caller can
// show the two side by side and pick a resolution. It is returned over the
// wire as the HTTP 409 body and is never persisted.
type ConflictError struct {
	Message       string `json:"message"`
	ServerVersion int64  `json:"serverVersion"`
	ClientVersion int64  `json:"clientVersion"`
	ServerTitle   string `json:"serverTitle"`
	ClientTitle   string `json:"clientTitle"`
	ServerContent string `json:"serverContent"`
	ClientContent string `json:"clientContent"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: server has v%d, client submitted v%d",
		e.ServerVersion, e.ClientVersion)
}

// NewConflictError builds a ConflictError from the server's current page and
// the client's rejected submission.
func NewConflictError(server *Page, clientVersion int64, clientTitle, clientContent string) *ConflictError {
	return &ConflictError{
		Message:       "page was modified by another client",
		ServerVersion: server.Version,
		ClientVersion: clientVersion,
		ServerTitle:   server.Title,
		ClientTitle:   clientTitle,
		ServerContent: server.Content,
		ClientContent: clientContent,
	}
}

// ValidationError reports malformed caller input as field-level messages.
// Rendered as HTTP 400 with the field map in the body; never retried.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}
