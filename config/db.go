package config

import (
	"fmt"

	dbm "github.com/tendermint/tm-db"
)

// DBContext names the database to open and carries the node config it is
// opened under.
type DBContext struct {
	ID     string
	Config *Config
}

// DBProvider opens the database described by a DBContext.
type DBProvider func(*DBContext) (dbm.DB, error)

// DefaultDBProvider opens the database with the backend of the config, under
// its DBDir. A memdb database lives only as long as the process.
func DefaultDBProvider(ctx *DBContext) (dbm.DB, error) {
	backend := dbm.BackendType(ctx.Config.DBBackend)
	switch backend {
	case dbm.MemDBBackend:
		return dbm.NewMemDB(), nil
	case dbm.GoLevelDBBackend:
		return dbm.NewDB(ctx.ID, backend, ctx.Config.DBDir())
	default:
		return nil, fmt.Errorf("unsupported db backend %q", backend)
	}
}
