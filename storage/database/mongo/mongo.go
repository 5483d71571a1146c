package mongorepos

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/entrykart/core/access"
)

// Collections
const (
	adminsColl    = "admins"
	guardsColl    = "security_guards"
	societiesColl = "societies"
	ownersColl    = "flat_owners"
	recordsColl   = "maintenance_records"
)

// EnsureIndexes creates the unique indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		adminsColl: {{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique}},
		guardsColl: {{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique}},
		societiesColl: {
			{Keys: bson.D{{Key: "name_key", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "admin_email", Value: 1}}},
		},
		ownersColl: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "society_key", Value: 1}}},
		},
		recordsColl: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "period", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "society_key", Value: 1}, {Key: "due_date", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "creating %s indexes", coll)
		}
	}
	return nil
}

// scopeFilter restricts a query on `field` (a normalized society name) to scope.
func scopeFilter(field string, scope access.Scope) bson.M {
	if scope.All {
		return bson.M{}
	}
	societies := scope.Societies
	if societies == nil {
		societies = []string{}
	}
	return bson.M{field: bson.M{"$in": societies}}
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	d128, _ := primitive.ParseDecimal128(d.String())
	return d128
}

func fromDecimal128(d128 primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(d128.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// objectID parses a hex id; ok is false for ids this store never issued.
func objectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}

func trapNoDocsErr(err, notFound error, msg string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound
	}
	return errors.Wrap(err, msg)
}
