package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"moalmanac-api/internal/config"
	"moalmanac-api/internal/dbexec"
	"moalmanac-api/internal/resolver"
	"moalmanac-api/internal/store"

	_ "github.com/go-sql-driver/mysql"
)

// openDB connects to the configured database. Snapshots are only written
// through the sqlite driver; when create is false the snapshot must exist.
func (rt *runtime) openDB(ctx context.Context, create bool) (*sql.DB, error) {
	dbCfg := rt.cfg.Database

	var (
		db  *sql.DB
		err error
	)
	switch {
	case dbCfg.IsMySQL():
		if create {
			return nil, fmt.Errorf("snapshots can only be written with the %s driver", config.DriverSQLite)
		}
		if err := dbCfg.RegisterTLS(); err != nil {
			return nil, err
		}
		db, err = sql.Open(config.DriverMySQL, dbCfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	default:
		if !create {
			if _, statErr := os.Stat(dbCfg.Path); statErr != nil {
				return nil, fmt.Errorf("snapshot %q is not readable: %w", dbCfg.Path, statErr)
			}
		}
		db, err = store.OpenSQLite(dbCfg.Path)
		if err != nil {
			return nil, err
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func newResolver(db *sql.DB) *resolver.Resolver {
	return resolver.NewResolver(dbexec.NewStandardExecutor(db))
}
