package store

import "time"

// Session identifies one patron's presence under a chosen display name.
type Session struct {
	ID           int32
	UID          string
	SessionKey   string
	DisplayName  string
	IsActive     bool
	LastActiveTs int64
	CreatedTs    int64
}

type FindSession struct {
	ID          *int32
	UID         *string
	SessionKey  *string
	DisplayName *string
	IsActive    *bool
}

type UpdateSession struct {
	ID           int32
	IsActive     *bool
	LastActiveTs *int64
}

// ActiveUser is one visible presence: the freshest active session per
// distinct display name.
type ActiveUser struct {
	DisplayName string
	LastActive  time.Time
	SessionKey  string
}
