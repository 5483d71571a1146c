package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/entrykart/core"
	"github.com/trezcool/entrykart/core/access"
	"github.com/trezcool/entrykart/core/maintenance"
)

type recordDoc struct {
	ID          primitive.ObjectID   `bson:"_id"`
	OwnerID     primitive.ObjectID   `bson:"owner_id"`
	SocietyName string               `bson:"society_name"`
	SocietyKey  string               `bson:"society_key"`
	FlatNumber  string               `bson:"flat_number"`
	BaseAmount  primitive.Decimal128 `bson:"base_amount"`
	Amount      primitive.Decimal128 `bson:"amount"`
	DueDate     time.Time            `bson:"due_date"`
	Period      string               `bson:"period"`
	PaymentDate *time.Time           `bson:"payment_date"`
	Status      string               `bson:"status"`
	Penalty     primitive.Decimal128 `bson:"penalty"`
	AdminEmail  string               `bson:"admin_email"`
	CreatedAt   time.Time            `bson:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at"`
}

func (d recordDoc) record() maintenance.Record {
	var pd *time.Time
	if d.PaymentDate != nil {
		t := d.PaymentDate.UTC()
		pd = &t
	}
	return maintenance.Record{
		ID:          d.ID.Hex(),
		OwnerID:     d.OwnerID.Hex(),
		SocietyName: d.SocietyName,
		FlatNumber:  d.FlatNumber,
		BaseAmount:  fromDecimal128(d.BaseAmount),
		Amount:      fromDecimal128(d.Amount),
		DueDate:     d.DueDate.UTC(),
		Period:      d.Period,
		PaymentDate: pd,
		Status:      maintenance.Status(d.Status),
		Penalty:     fromDecimal128(d.Penalty),
		AdminEmail:  d.AdminEmail,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

type maintenanceRepository struct {
	records *mongo.Collection
}

var _ maintenance.Repository = (*maintenanceRepository)(nil)

func NewMaintenanceRepository(db *mongo.Database) maintenance.Repository {
	return &maintenanceRepository{records: db.Collection(recordsColl)}
}

// FindOrCreateRecord upserts on the unique (owner_id, period) index.
// Two concurrent upserts may both miss and race on insert; the loser retries and finds the winner's record.
func (repo *maintenanceRepository) FindOrCreateRecord(ctx context.Context, rec maintenance.Record) (maintenance.Record, bool, error) {
	ownerID, ok := objectID(rec.OwnerID)
	if !ok {
		return maintenance.Record{}, false, errors.Errorf("invalid owner id %q", rec.OwnerID)
	}
	newID := primitive.NewObjectID()
	filter := bson.M{"owner_id": ownerID, "period": rec.Period}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":          newID,
		"society_name": rec.SocietyName,
		"society_key":  access.NormalizeSociety(rec.SocietyName),
		"flat_number":  rec.FlatNumber,
		"base_amount":  toDecimal128(rec.BaseAmount),
		"amount":       toDecimal128(rec.Amount),
		"due_date":     rec.DueDate,
		"payment_date": rec.PaymentDate,
		"status":       string(rec.Status),
		"penalty":      toDecimal128(rec.Penalty),
		"admin_email":  rec.AdminEmail,
		"created_at":   rec.CreatedAt.UTC(),
		"updated_at":   rec.UpdatedAt.UTC(),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var (
		doc recordDoc
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		err = repo.records.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	if err != nil {
		return maintenance.Record{}, false, errors.Wrap(err, "upserting record")
	}
	return doc.record(), doc.ID == newID, nil
}

func (repo *maintenanceRepository) GetRecord(ctx context.Context, id string) (maintenance.Record, error) {
	oid, ok := objectID(id)
	if !ok {
		return maintenance.Record{}, maintenance.ErrNotFound
	}
	var doc recordDoc
	if err := repo.records.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return maintenance.Record{}, trapNoDocsErr(err, maintenance.ErrNotFound, "finding record")
	}
	return doc.record(), nil
}

func recordsFilter(scope access.Scope, filter maintenance.QueryFilter) (bson.M, error) {
	f := scopeFilter("society_key", scope)
	if filter.OwnerID != "" {
		oid, ok := objectID(filter.OwnerID)
		if !ok {
			return nil, errors.Errorf("invalid owner id %q", filter.OwnerID)
		}
		f["owner_id"] = oid
	}
	if filter.Society != "" {
		key := access.NormalizeSociety(filter.Society)
		if scoped, ok := f["society_key"]; ok {
			f["$and"] = bson.A{bson.M{"society_key": scoped}, bson.M{"society_key": key}}
			delete(f, "society_key")
		} else {
			f["society_key"] = key
		}
	}
	if len(filter.Statuses) > 0 {
		statuses := make(bson.A, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		f["status"] = bson.M{"$in": statuses}
	}
	due := bson.M{}
	if !filter.DueFrom.IsZero() {
		due["$gte"] = filter.DueFrom
	}
	if !filter.DueTo.IsZero() {
		due["$lte"] = filter.DueTo
	}
	if len(due) > 0 {
		f["due_date"] = due
	}
	return f, nil
}

func (repo *maintenanceRepository) QueryRecords(ctx context.Context, scope access.Scope, filter maintenance.QueryFilter, ordering ...core.DBOrdering) ([]maintenance.Record, error) {
	f, err := recordsFilter(scope, filter)
	if err != nil {
		return nil, err
	}
	sort := bson.D{}
	for _, ord := range core.AllowedOrderings(ordering, maintenance.OrderingFields) {
		dir := -1
		if ord.Ascending {
			dir = 1
		}
		sort = append(sort, bson.E{Key: ord.Field, Value: dir})
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})

	cur, err := repo.records.Find(ctx, f, options.Find().SetSort(sort))
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	var docs []recordDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding records")
	}
	recs := make([]maintenance.Record, 0, len(docs))
	for _, d := range docs {
		recs = append(recs, d.record())
	}
	return recs, nil
}

func (repo *maintenanceRepository) CountRecords(ctx context.Context, scope access.Scope, filter maintenance.QueryFilter) (int, error) {
	f, err := recordsFilter(scope, filter)
	if err != nil {
		return 0, err
	}
	count, err := repo.records.CountDocuments(ctx, f)
	if err != nil {
		return 0, errors.Wrap(err, "counting records")
	}
	return int(count), nil
}

// updateUnpaid applies set to an unpaid record; a miss is reported as ErrAlreadyPaid or ErrNotFound.
func (repo *maintenanceRepository) updateUnpaid(ctx context.Context, id string, set bson.M) (maintenance.Record, error) {
	oid, ok := objectID(id)
	if !ok {
		return maintenance.Record{}, maintenance.ErrNotFound
	}
	filter := bson.M{"_id": oid, "status": bson.M{"$ne": string(maintenance.StatusPaid)}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc recordDoc
	err := repo.records.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	if err == nil {
		return doc.record(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return maintenance.Record{}, errors.Wrap(err, "updating record")
	}
	if _, err = repo.GetRecord(ctx, id); err != nil {
		return maintenance.Record{}, err
	}
	return maintenance.Record{}, maintenance.ErrAlreadyPaid
}

func (repo *maintenanceRepository) UpdatePenalty(ctx context.Context, id string, status maintenance.Status, penalty decimal.Decimal, updatedAt time.Time) (maintenance.Record, error) {
	return repo.updateUnpaid(ctx, id, bson.M{
		"status":     string(status),
		"penalty":    toDecimal128(penalty),
		"updated_at": updatedAt.UTC(),
	})
}

func (repo *maintenanceRepository) MarkPaid(ctx context.Context, id string, paymentDate time.Time, amount, penalty decimal.Decimal, updatedAt time.Time) (maintenance.Record, error) {
	return repo.updateUnpaid(ctx, id, bson.M{
		"status":       string(maintenance.StatusPaid),
		"payment_date": paymentDate,
		"amount":       toDecimal128(amount),
		"penalty":      toDecimal128(penalty),
		"updated_at":   updatedAt.UTC(),
	})
}

func (repo *maintenanceRepository) UpdateRecord(ctx context.Context, rec maintenance.Record) (maintenance.Record, error) {
	oid, ok := objectID(rec.ID)
	if !ok {
		return maintenance.Record{}, maintenance.ErrNotFound
	}
	set := bson.M{
		"amount":       toDecimal128(rec.Amount),
		"penalty":      toDecimal128(rec.Penalty),
		"status":       string(rec.Status),
		"payment_date": rec.PaymentDate,
		"due_date":     rec.DueDate,
		"period":       rec.Period,
		"updated_at":   rec.UpdatedAt.UTC(),
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc recordDoc
	err := repo.records.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return maintenance.Record{}, maintenance.ErrPeriodTaken
		}
		return maintenance.Record{}, trapNoDocsErr(err, maintenance.ErrNotFound, "updating record")
	}
	return doc.record(), nil
}
