package store

// Conversation is a bounded thread of messages belonging to one session.
// A session has at most one non-archived conversation at a time.
type Conversation struct {
	ID         int32
	UID        string
	SessionID  int32
	Title      string
	IsArchived bool
	CreatedTs  int64
	UpdatedTs  int64
}

type FindConversation struct {
	ID         *int32
	UID        *string
	SessionID  *int32
	IsArchived *bool
}

type UpdateConversation struct {
	ID         int32
	Title      *string
	IsArchived *bool
	UpdatedTs  *int64
}
