// Package storage opens the repositories of the configured database engine.
package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
	"github.com/trezcool/entrykart/core/society"
	"github.com/trezcool/entrykart/storage/database"
	inmemdb "github.com/trezcool/entrykart/storage/database/inmem"
	mongorepos "github.com/trezcool/entrykart/storage/database/mongo"
	sqlxrepos "github.com/trezcool/entrykart/storage/database/sqlx"
)

type Repos struct {
	Access      access.Repository
	Society     society.Repository
	Maintenance maintenance.Repository

	SQL   *sqlx.DB // set for postgres only
	Close func() error
}

// Open connects to conf.Database.Engine. Postgres databases are created if needed and,
// when migrate is set, migrated up; mongodb indexes are always ensured.
func Open(ctx context.Context, conf *core.Config, migrate bool) (Repos, error) {
	switch conf.Database.Engine {
	case database.EnginePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			return Repos{}, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return Repos{}, err
		}
		if migrate {
			if err = database.Migrate(db); err != nil {
				_ = db.Close()
				return Repos{}, err
			}
		}
		return Repos{
			Access:      sqlxrepos.NewAccessRepository(db),
			Society:     sqlxrepos.NewSocietyRepository(db),
			Maintenance: sqlxrepos.NewMaintenanceRepository(db),
			SQL:         db,
			Close:       db.Close,
		}, nil

	case database.EngineMongoDB:
		client, db, err := database.OpenMongo(ctx, conf)
		if err != nil {
			return Repos{}, err
		}
		if err = mongorepos.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return Repos{}, err
		}
		return Repos{
			Access:      mongorepos.NewAccessRepository(db),
			Society:     mongorepos.NewSocietyRepository(db),
			Maintenance: mongorepos.NewMaintenanceRepository(db),
			Close:       func() error { return client.Disconnect(context.Background()) },
		}, nil

	case database.EngineInMemory:
		db := inmemdb.Open()
		return Repos{
			Access:      inmemdb.NewAccessRepository(db),
			Society:     inmemdb.NewSocietyRepository(db),
			Maintenance: inmemdb.NewMaintenanceRepository(db),
			Close:       func() error { return nil },
		}, nil
	}
	return Repos{}, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}
