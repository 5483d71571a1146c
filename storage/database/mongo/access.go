package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/trezcool/entrykart/core/access"
)

type adminDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	Phone        string             `bson:"phone"`
	Role         string             `bson:"role"`
	PasswordHash []byte             `bson:"password_hash"`
	CreatedAt    time.Time          `bson:"created_at"`
}

type guardDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	Email        string             `bson:"email"`
	SocietyID    string             `bson:"society_id"`
	PasswordHash []byte             `bson:"password_hash"`
	CreatedAt    time.Time          `bson:"created_at"`
}

type accessRepository struct {
	admins *mongo.Collection
	guards *mongo.Collection
}

var _ access.Repository = (*accessRepository)(nil)

func NewAccessRepository(db *mongo.Database) access.Repository {
	return &accessRepository{admins: db.Collection(adminsColl), guards: db.Collection(guardsColl)}
}

func (repo *accessRepository) CreateAdmin(ctx context.Context, adm access.Admin) (access.Admin, error) {
	doc := adminDoc{
		ID:           primitive.NewObjectID(),
		Name:         adm.Name,
		Email:        adm.Email,
		Phone:        adm.Phone,
		Role:         string(adm.Role),
		PasswordHash: adm.PasswordHash,
		CreatedAt:    adm.CreatedAt.UTC(),
	}
	if _, err := repo.admins.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return access.Admin{}, access.ErrAccountExists
		}
		return access.Admin{}, errors.Wrap(err, "inserting admin")
	}
	adm.ID = doc.ID.Hex()
	return adm, nil
}

func (repo *accessRepository) GetAdminByEmail(ctx context.Context, email string) (access.Admin, error) {
	var doc adminDoc
	if err := repo.admins.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		return access.Admin{}, trapNoDocsErr(err, access.ErrAdminNotFound, "finding admin by email")
	}
	return access.Admin{
		ID:           doc.ID.Hex(),
		Name:         doc.Name,
		Email:        doc.Email,
		Phone:        doc.Phone,
		Role:         access.Role(doc.Role),
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt.UTC(),
	}, nil
}

func (repo *accessRepository) CreateGuard(ctx context.Context, guard access.SecurityGuard) (access.SecurityGuard, error) {
	doc := guardDoc{
		ID:           primitive.NewObjectID(),
		Email:        guard.Email,
		SocietyID:    guard.SocietyID,
		PasswordHash: guard.PasswordHash,
		CreatedAt:    guard.CreatedAt.UTC(),
	}
	if _, err := repo.guards.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return access.SecurityGuard{}, access.ErrAccountExists
		}
		return access.SecurityGuard{}, errors.Wrap(err, "inserting guard")
	}
	guard.ID = doc.ID.Hex()
	return guard, nil
}

func (repo *accessRepository) GetGuardByEmail(ctx context.Context, email string) (access.SecurityGuard, error) {
	var doc guardDoc
	if err := repo.guards.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		return access.SecurityGuard{}, trapNoDocsErr(err, access.ErrGuardNotFound, "finding guard by email")
	}
	return access.SecurityGuard{
		ID:           doc.ID.Hex(),
		Email:        doc.Email,
		SocietyID:    doc.SocietyID,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt.UTC(),
	}, nil
}
