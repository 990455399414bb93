package mongodb

import (
	// Go Internal Packages
	"context"

	// Local Packages
	errors "tx-intake/errors"
	models "tx-intake/models"

	// External Packages
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TxRepository struct {
	Client     *mongo.Client
	Database   string
	Collection string
}

func NewTxRepository(client *mongo.Client, database, collection string) *TxRepository {
	return &TxRepository{Client: client, Database: database, Collection: collection}
}

func (r *TxRepository) coll() *mongo.Collection {
	return r.Client.Database(r.Database).Collection(r.Collection)
}

// EnsureIndexes creates the lookup index used by duplicate detection. The
// index is not unique; concurrent submissions of the same key may both land.
func (r *TxRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "amount", Value: 1}}},
		{Keys: bson.D{{Key: "client_id", Value: 1}}},
	})
	if err != nil {
		return errors.StorageErr("create indexes", err)
	}
	return nil
}

func (r *TxRepository) FindByIdempotencyKey(ctx context.Context, key models.IdempotencyKey) (*models.Transaction, error) {
	probe := models.Transaction{ClientID: key.ClientID, Timestamp: key.Timestamp, Amount: key.Amount}
	doc, err := probe.Transform()
	if err != nil {
		return nil, errors.E(errors.Invalid, "amount out of range", err)
	}

	filter := bson.D{
		{Key: "client_id", Value: doc.ClientID},
		{Key: "timestamp", Value: doc.Timestamp},
		{Key: "amount", Value: doc.Amount},
	}
	tx, err := r.findOne(ctx, filter)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageErr("find by idempotency key", err)
	}
	return tx, nil
}

func (r *TxRepository) FindByClientID(ctx context.Context, clientID string) (*models.Transaction, error) {
	tx, err := r.findOne(ctx, bson.D{{Key: "client_id", Value: clientID}})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.NotFoundErr("transaction", clientID)
	}
	if err != nil {
		return nil, errors.StorageErr("find by client id", err)
	}
	return tx, nil
}

func (r *TxRepository) Get(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.NotFoundErr("transaction", id)
	}
	if err != nil {
		return nil, errors.StorageErr("get", err)
	}
	return tx, nil
}

func (r *TxRepository) List(ctx context.Context) ([]models.Transaction, error) {
	cursor, err := r.coll().Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.StorageErr("list", err)
	}
	defer cursor.Close(ctx)

	txs := []models.Transaction{}
	for cursor.Next(ctx) {
		var doc models.MongoTransaction
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.StorageErr("decode", err)
		}
		tx, err := doc.Transaction()
		if err != nil {
			return nil, errors.StorageErr("decode amount", err)
		}
		txs = append(txs, tx)
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.StorageErr("list", err)
	}
	return txs, nil
}

// SetStatus upserts the record with the given status. The filter excludes
// completed rows, so the upsert hits the _id unique index instead of moving a
// completed record backwards; that duplicate key error is the no-op case.
func (r *TxRepository) SetStatus(ctx context.Context, tx *models.Transaction, status models.Status) error {
	doc, err := tx.Transform()
	if err != nil {
		return errors.StorageErr("set status", err)
	}

	filter := bson.D{
		{Key: "_id", Value: doc.ID},
		{Key: "status", Value: bson.D{{Key: "$ne", Value: models.StatusCompleted}}},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "status", Value: status}}},
		{Key: "$setOnInsert", Value: insertFields(&doc)},
	}
	_, err = r.coll().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return errors.StorageErr("set status", err)
	}
	return nil
}

// UpsertCompleted inserts the record as completed. On an id conflict only the
// status is overwritten; the stored fields win.
func (r *TxRepository) UpsertCompleted(ctx context.Context, tx *models.Transaction) error {
	doc, err := tx.Transform()
	if err != nil {
		return errors.StorageErr("upsert completed", err)
	}

	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "status", Value: models.StatusCompleted}}},
		{Key: "$setOnInsert", Value: insertFields(&doc)},
	}
	_, err = r.coll().UpdateOne(ctx, bson.D{{Key: "_id", Value: doc.ID}}, update, options.Update().SetUpsert(true))
	if err != nil {
		return errors.StorageErr("upsert completed", err)
	}
	return nil
}

func (r *TxRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.coll().DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, errors.StorageErr("delete all", err)
	}
	return res.DeletedCount, nil
}

func (r *TxRepository) Close() error {
	return r.Client.Disconnect(context.Background())
}

func (r *TxRepository) findOne(ctx context.Context, filter bson.D) (*models.Transaction, error) {
	var doc models.MongoTransaction
	if err := r.coll().FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, err
	}
	tx, err := doc.Transaction()
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// insertFields lists every column except _id and status, which the upserts
// set through the filter and $set respectively.
func insertFields(doc *models.MongoTransaction) bson.D {
	fields := bson.D{
		{Key: "client_id", Value: doc.ClientID},
		{Key: "amount", Value: doc.Amount},
		{Key: "currency", Value: doc.Currency},
		{Key: "description", Value: doc.Description},
		{Key: "timestamp", Value: doc.Timestamp},
	}
	if doc.Metadata != nil {
		fields = append(fields, bson.E{Key: "metadata", Value: doc.Metadata})
	}
	return fields
}
