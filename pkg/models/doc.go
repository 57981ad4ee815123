// Package models defines the entities shared between the draftpad server and
// its HTTP client: workspaces, the pages they contain, and the error payloads
// that cross the API boundary.
//
// Pages carry a server-owned version counter used for optimistic concurrency
// control. The counter starts at zero when a page is created and increases by
// exactly one on every committed update; it never skips and never decreases.
// A stale update is rejected with a [ConflictError] describing both sides of
// the conflict so a caller can render a comparison and decide how to resolve
// it.
//
// Typed IDs wrap [github.com/google/uuid.UUID] so a WorkspaceID can never be
// passed where a PageID is expected. The ID types implement JSON marshaling
// and the database/sql Valuer/Scanner pair so they work transparently in API
// payloads and GORM queries alike.
package models
