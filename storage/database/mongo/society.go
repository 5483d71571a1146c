package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/society"
)

type societyDoc struct {
	ID         primitive.ObjectID `bson:"_id"`
	Name       string             `bson:"name"`
	NameKey    string             `bson:"name_key"`
	Location   string             `bson:"location"`
	Flats      []string           `bson:"flats"`
	AdminEmail string             `bson:"admin_email"`
	CreatedAt  time.Time          `bson:"created_at"`
}

func (d societyDoc) society() society.Society {
	return society.Society{
		ID:         d.ID.Hex(),
		Name:       d.Name,
		Location:   d.Location,
		Flats:      d.Flats,
		AdminEmail: d.AdminEmail,
		CreatedAt:  d.CreatedAt.UTC(),
	}
}

type ownerDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	SocietyName string             `bson:"society_name"`
	SocietyKey  string             `bson:"society_key"`
	FlatNumber  string             `bson:"flat_number"`
	OwnerName   string             `bson:"owner_name"`
	Profession  string             `bson:"profession"`
	Contact     string             `bson:"contact"`
	Email       string             `bson:"email"`
	AdminEmail  string             `bson:"admin_email"`
	CreatedAt   time.Time          `bson:"created_at"`
}

func (d ownerDoc) owner() society.FlatOwner {
	return society.FlatOwner{
		ID:          d.ID.Hex(),
		SocietyName: d.SocietyName,
		FlatNumber:  d.FlatNumber,
		OwnerName:   d.OwnerName,
		Profession:  d.Profession,
		Contact:     d.Contact,
		Email:       d.Email,
		AdminEmail:  d.AdminEmail,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

type societyRepository struct {
	societies *mongo.Collection
	owners    *mongo.Collection
	records   *mongo.Collection
}

var _ society.Repository = (*societyRepository)(nil)

func NewSocietyRepository(db *mongo.Database) society.Repository {
	return &societyRepository{
		societies: db.Collection(societiesColl),
		owners:    db.Collection(ownersColl),
		records:   db.Collection(recordsColl),
	}
}

func (repo *societyRepository) CreateSociety(ctx context.Context, soc society.Society) (society.Society, error) {
	if soc.Flats == nil {
		soc.Flats = []string{}
	}
	doc := societyDoc{
		ID:         primitive.NewObjectID(),
		Name:       soc.Name,
		NameKey:    access.NormalizeSociety(soc.Name),
		Location:   soc.Location,
		Flats:      soc.Flats,
		AdminEmail: soc.AdminEmail,
		CreatedAt:  soc.CreatedAt.UTC(),
	}
	if _, err := repo.societies.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return society.Society{}, society.ErrSocietyExists
		}
		return society.Society{}, errors.Wrap(err, "inserting society")
	}
	return doc.society(), nil
}

func (repo *societyRepository) GetSocietyByID(ctx context.Context, id string) (society.Society, error) {
	oid, ok := objectID(id)
	if !ok {
		return society.Society{}, society.ErrSocietyNotFound
	}
	var doc societyDoc
	if err := repo.societies.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return society.Society{}, trapNoDocsErr(err, society.ErrSocietyNotFound, "finding society by id")
	}
	return doc.society(), nil
}

func (repo *societyRepository) GetSocietyByName(ctx context.Context, name string) (society.Society, error) {
	var doc societyDoc
	err := repo.societies.FindOne(ctx, bson.M{"name_key": access.NormalizeSociety(name)}).Decode(&doc)
	if err != nil {
		return society.Society{}, trapNoDocsErr(err, society.ErrSocietyNotFound, "finding society by name")
	}
	return doc.society(), nil
}

func (repo *societyRepository) QuerySocieties(ctx context.Context, scope access.Scope) ([]society.Society, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cur, err := repo.societies.Find(ctx, scopeFilter("name_key", scope), opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying societies")
	}
	var docs []societyDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding societies")
	}
	socs := make([]society.Society, 0, len(docs))
	for _, d := range docs {
		socs = append(socs, d.society())
	}
	return socs, nil
}

func (repo *societyRepository) CountSocieties(ctx context.Context, scope access.Scope) (int, error) {
	n, err := repo.societies.CountDocuments(ctx, scopeFilter("name_key", scope))
	if err != nil {
		return 0, errors.Wrap(err, "counting societies")
	}
	return int(n), nil
}

func (repo *societyRepository) UpdateSociety(ctx context.Context, soc society.Society) (society.Society, error) {
	oid, ok := objectID(soc.ID)
	if !ok {
		return society.Society{}, society.ErrSocietyNotFound
	}
	if soc.Flats == nil {
		soc.Flats = []string{}
	}
	update := bson.M{"$set": bson.M{"location": soc.Location, "flats": soc.Flats, "admin_email": soc.AdminEmail}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc societyDoc
	if err := repo.societies.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc); err != nil {
		return society.Society{}, trapNoDocsErr(err, society.ErrSocietyNotFound, "updating society")
	}

	_, err := repo.owners.UpdateMany(ctx, bson.M{"society_key": doc.NameKey}, bson.M{"$set": bson.M{"admin_email": doc.AdminEmail}})
	if err != nil {
		return society.Society{}, errors.Wrap(err, "updating society owners")
	}
	return doc.society(), nil
}

// DeleteSociety is not atomic: the society goes first, then its records and owners.
func (repo *societyRepository) DeleteSociety(ctx context.Context, id string) error {
	oid, ok := objectID(id)
	if !ok {
		return society.ErrSocietyNotFound
	}
	var doc societyDoc
	if err := repo.societies.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return trapNoDocsErr(err, society.ErrSocietyNotFound, "deleting society")
	}
	if _, err := repo.records.DeleteMany(ctx, bson.M{"society_key": doc.NameKey}); err != nil {
		return errors.Wrap(err, "deleting society records")
	}
	if _, err := repo.owners.DeleteMany(ctx, bson.M{"society_key": doc.NameKey}); err != nil {
		return errors.Wrap(err, "deleting society owners")
	}
	return nil
}

func (repo *societyRepository) SocietyNamesByAdmin(ctx context.Context, adminEmail string) ([]string, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}}).SetProjection(bson.M{"name": 1})
	cur, err := repo.societies.Find(ctx, bson.M{"admin_email": adminEmail}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying society names")
	}
	var docs []societyDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding society names")
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}
	return names, nil
}

func (repo *societyRepository) CreateOwner(ctx context.Context, owner society.FlatOwner) (society.FlatOwner, error) {
	doc := ownerDoc{
		ID:          primitive.NewObjectID(),
		SocietyName: owner.SocietyName,
		SocietyKey:  access.NormalizeSociety(owner.SocietyName),
		FlatNumber:  owner.FlatNumber,
		OwnerName:   owner.OwnerName,
		Profession:  owner.Profession,
		Contact:     owner.Contact,
		Email:       owner.Email,
		AdminEmail:  owner.AdminEmail,
		CreatedAt:   owner.CreatedAt.UTC(),
	}
	if _, err := repo.owners.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return society.FlatOwner{}, society.ErrOwnerExists
		}
		return society.FlatOwner{}, errors.Wrap(err, "inserting owner")
	}
	return doc.owner(), nil
}

func (repo *societyRepository) getOwner(ctx context.Context, filter bson.M) (society.FlatOwner, error) {
	var doc ownerDoc
	if err := repo.owners.FindOne(ctx, filter).Decode(&doc); err != nil {
		return society.FlatOwner{}, trapNoDocsErr(err, society.ErrOwnerNotFound, "finding owner")
	}
	return doc.owner(), nil
}

func (repo *societyRepository) GetOwnerByID(ctx context.Context, id string) (society.FlatOwner, error) {
	oid, ok := objectID(id)
	if !ok {
		return society.FlatOwner{}, society.ErrOwnerNotFound
	}
	return repo.getOwner(ctx, bson.M{"_id": oid})
}

func (repo *societyRepository) GetOwnerByEmail(ctx context.Context, email string) (society.FlatOwner, error) {
	return repo.getOwner(ctx, bson.M{"email": email})
}

func (repo *societyRepository) QueryOwners(ctx context.Context, scope access.Scope) ([]society.FlatOwner, error) {
	opts := options.Find().SetSort(bson.D{{Key: "society_name", Value: 1}, {Key: "flat_number", Value: 1}})
	cur, err := repo.owners.Find(ctx, scopeFilter("society_key", scope), opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying owners")
	}
	var docs []ownerDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding owners")
	}
	owners := make([]society.FlatOwner, 0, len(docs))
	for _, d := range docs {
		owners = append(owners, d.owner())
	}
	return owners, nil
}

func (repo *societyRepository) UpdateOwner(ctx context.Context, owner society.FlatOwner) (society.FlatOwner, error) {
	oid, ok := objectID(owner.ID)
	if !ok {
		return society.FlatOwner{}, society.ErrOwnerNotFound
	}
	update := bson.M{"$set": bson.M{
		"flat_number": owner.FlatNumber,
		"owner_name":  owner.OwnerName,
		"profession":  owner.Profession,
		"contact":     owner.Contact,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc ownerDoc
	if err := repo.owners.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc); err != nil {
		return society.FlatOwner{}, trapNoDocsErr(err, society.ErrOwnerNotFound, "updating owner")
	}
	return doc.owner(), nil
}

func (repo *societyRepository) DeleteOwner(ctx context.Context, id string) error {
	oid, ok := objectID(id)
	if !ok {
		return society.ErrOwnerNotFound
	}
	res, err := repo.owners.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return errors.Wrap(err, "deleting owner")
	}
	if res.DeletedCount == 0 {
		return society.ErrOwnerNotFound
	}
	if _, err = repo.records.DeleteMany(ctx, bson.M{"owner_id": oid}); err != nil {
		return errors.Wrap(err, "deleting owner records")
	}
	return nil
}
