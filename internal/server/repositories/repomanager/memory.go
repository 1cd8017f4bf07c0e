package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/otps"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/users"
)

// MemoryRepositoryManager vends views over one in-process memory.Store. The
// DBTX argument is ignored; there is no schema to migrate.
type MemoryRepositoryManager struct {
	store *memory.Store
}

// NewMemoryRepositoryManager wraps store. A nil store gets a fresh one.
func NewMemoryRepositoryManager(store *memory.Store) *MemoryRepositoryManager {
	if store == nil {
		store = memory.New()
	}
	return &MemoryRepositoryManager{store: store}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository { return m.store.Users() }

func (m *MemoryRepositoryManager) Otps(dbx.DBTX) otps.Repository { return m.store.Otps() }

func (m *MemoryRepositoryManager) Sessions(dbx.DBTX) sessions.Repository { return m.store.Sessions() }
