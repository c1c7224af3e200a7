// Package repomanager wires repository constructors together so services can
// obtain repositories bound to either a plain connection or a transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
