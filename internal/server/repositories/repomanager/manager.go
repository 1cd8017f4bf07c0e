// Package repomanager vends repository implementations bound to a DBTX, so
// services can run the same code against *sql.DB or inside a transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/otps"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/users"
)

// RepositoryManager is the store adapter seen by the services.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Otps(db dbx.DBTX) otps.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
