package types

// Status is the row-level status of a persisted entity. Rows are soft
// deleted by flipping this to deleted, never removed.
type Status string

const (
	StatusPublished Status = "published"
	StatusDeleted   Status = "deleted"
	StatusArchived  Status = "archived"
)

func (s Status) String() string {
	return string(s)
}
