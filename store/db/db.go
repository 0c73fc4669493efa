package db

import (
	"github.com/pkg/errors"

	"github.com/hiroq/techbar/internal/profile"
	"github.com/hiroq/techbar/store"
	"github.com/hiroq/techbar/store/db/postgres"
	"github.com/hiroq/techbar/store/db/sqlite"
)

// PostgreSQL is the production database with full vector search support.
// SQLite is for development and testing; similarity retrieval is disabled
// on it.

// NewDBDriver creates a new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.New("unknown db driver: only 'postgres' and 'sqlite' are supported")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
