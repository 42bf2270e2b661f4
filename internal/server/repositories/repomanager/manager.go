// Package repomanager vends repository implementations bound to a DBTX
// (connection or transaction) and runs schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/blacklist"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/loginattempts"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Blacklist(db dbx.DBTX) blacklist.Repository
	LoginAttempts(db dbx.DBTX) loginattempts.Repository
}
