package domain

// EventKind discriminates change-notification events.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventDelete EventKind = "delete"
)

// Event is one change notification for an owner's bookmarks.
// Insert events carry the full record; delete events carry only the id.
type Event struct {
	Kind     EventKind `json:"kind"`
	Owner    string    `json:"owner"`
	Bookmark *Bookmark `json:"bookmark,omitempty"`
	ID       string    `json:"id,omitempty"`
}

// InsertEvent builds the notification published after a successful insert.
func InsertEvent(b *Bookmark) Event {
	return Event{Kind: EventInsert, Owner: b.Owner, Bookmark: b, ID: b.ID}
}

// DeleteEvent builds the notification published after a successful delete.
func DeleteEvent(owner, id string) Event {
	return Event{Kind: EventDelete, Owner: owner, ID: id}
}
