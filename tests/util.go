package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/trezcool/entrykart/apps/shared"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
	"github.com/trezcool/entrykart/core/society"
	"github.com/trezcool/entrykart/storage/database"
	inmemdb "github.com/trezcool/entrykart/storage/database/inmem"
	mongorepos "github.com/trezcool/entrykart/storage/database/mongo"
	sqlxrepos "github.com/trezcool/entrykart/storage/database/sqlx"
)

// Repos groups the repositories of one storage backend.
type Repos struct {
	Access      access.Repository
	Society     society.Repository
	Maintenance maintenance.Repository
}

// NewValidator returns a validator with every app validation registered.
func NewValidator() *validator.Validate {
	validate, _ := NewValidation()
	return validate
}

// NewValidation returns a validator with every app validation registered and its translator.
func NewValidation() (*validator.Validate, ut.Translator) {
	return shared.NewValidation()
}

func InMemRepos() (*inmemdb.DB, Repos) {
	db := inmemdb.Open()
	return db, Repos{
		Access:      inmemdb.NewAccessRepository(db),
		Society:     inmemdb.NewSocietyRepository(db),
		Maintenance: inmemdb.NewMaintenanceRepository(db),
	}
}

// PrepareDB opens the postgres database at TEST_DATABASE_URL with a fresh schema.
// The test is skipped when the variable is unset.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	db, err := database.OpenURL(dsn)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if err = database.RunMigration("reset", db); err != nil {
		t.Fatalf("PrepareDB() reset failed: %v", err)
	}
	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() migrate failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func SQLRepos(t *testing.T) Repos {
	db := PrepareDB(t)
	return Repos{
		Access:      sqlxrepos.NewAccessRepository(db),
		Society:     sqlxrepos.NewSocietyRepository(db),
		Maintenance: sqlxrepos.NewMaintenanceRepository(db),
	}
}

// PrepareMongo creates a throwaway database on the server at TEST_MONGO_URI.
// The test is skipped when the variable is unset.
func PrepareMongo(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI is not set")
	}
	ctx := context.Background()
	client, db, err := database.OpenMongoURI(ctx, uri, fmt.Sprintf("entrykart_test_%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("PrepareMongo() failed: %v", err)
	}
	if err = mongorepos.EnsureIndexes(ctx, db); err != nil {
		t.Fatalf("PrepareMongo() indexes failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func MongoRepos(t *testing.T) Repos {
	db := PrepareMongo(t)
	return Repos{
		Access:      mongorepos.NewAccessRepository(db),
		Society:     mongorepos.NewSocietyRepository(db),
		Maintenance: mongorepos.NewMaintenanceRepository(db),
	}
}

func CreateAdmin(t *testing.T, repo access.Repository, email string, role access.Role) access.Admin {
	t.Helper()
	adm, err := repo.CreateAdmin(context.Background(), access.Admin{
		Name:         email,
		Email:        email,
		Role:         role,
		PasswordHash: []byte("hash"),
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateAdmin() failed: %v", err)
	}
	return adm
}

func CreateGuard(t *testing.T, repo access.Repository, email, societyID string) access.SecurityGuard {
	t.Helper()
	guard, err := repo.CreateGuard(context.Background(), access.SecurityGuard{
		Email:        email,
		SocietyID:    societyID,
		PasswordHash: []byte("hash"),
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateGuard() failed: %v", err)
	}
	return guard
}

func CreateSociety(t *testing.T, repo society.Repository, name, adminEmail string, flats ...string) society.Society {
	t.Helper()
	soc, err := repo.CreateSociety(context.Background(), society.Society{
		Name:       name,
		Location:   "Pune",
		Flats:      flats,
		AdminEmail: adminEmail,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSociety() failed: %v", err)
	}
	return soc
}

func CreateOwner(t *testing.T, repo society.Repository, soc society.Society, flat, email string) society.FlatOwner {
	t.Helper()
	owner, err := repo.CreateOwner(context.Background(), society.FlatOwner{
		SocietyName: soc.Name,
		FlatNumber:  flat,
		OwnerName:   email,
		Email:       email,
		AdminEmail:  soc.AdminEmail,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateOwner() failed: %v", err)
	}
	return owner
}

// NewRecord builds an unsaved Pending record of owner for the month of due.
func NewRecord(owner society.FlatOwner, due time.Time) maintenance.Record {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return maintenance.Record{
		OwnerID:     owner.ID,
		SocietyName: owner.SocietyName,
		FlatNumber:  owner.FlatNumber,
		BaseAmount:  maintenance.DefaultBaseAmount,
		Amount:      maintenance.DefaultBaseAmount,
		DueDate:     due,
		Period:      maintenance.PeriodOf(due).String(),
		Status:      maintenance.StatusPending,
		Penalty:     decimal.Zero,
		AdminEmail:  owner.AdminEmail,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
