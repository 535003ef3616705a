package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/schemadiagram/internal/dbx"
	"github.com/dmitrijs2005/schemadiagram/internal/server/repositories/requests"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Requests(db dbx.DBTX) requests.Repository
}
