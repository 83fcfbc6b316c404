package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stationhq/cdregister/internal/domain/models"
	"github.com/stationhq/cdregister/internal/repository"
)

const (
	itemsColl        = "stock_items"
	transactionsColl = "transactions"
	auditPendingColl = "audit_pending"
)

// MongoStore implements repository.Store on MongoDB.
type MongoStore struct {
	client *mongo.Client
	dbName string
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, uri string, dbName string) (*MongoStore, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoStore{client: client, dbName: dbName}, nil
}

func (s *MongoStore) coll(name string) *mongo.Collection {
	return s.client.Database(s.dbName).Collection(name)
}

// GetItem loads one stock item and rejects malformed records.
func (s *MongoStore) GetItem(ctx context.Context, itemID string) (models.StockItem, error) {
	var item models.StockItem
	err := s.coll(itemsColl).FindOne(ctx, bson.M{"_id": itemID}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.StockItem{}, repository.ErrNotFound
	}
	if err != nil {
		return models.StockItem{}, fmt.Errorf("load stock item %s: %w", itemID, err)
	}
	if err := item.Validate(); err != nil {
		return models.StockItem{}, fmt.Errorf("stock item %s: %w", itemID, err)
	}
	return item, nil
}

// ListItems returns every stock item, retired ones included.
func (s *MongoStore) ListItems(ctx context.Context) ([]models.StockItem, error) {
	cursor, err := s.coll(itemsColl).Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"name": 1}))
	if err != nil {
		return nil, fmt.Errorf("list stock items: %w", err)
	}
	var items []models.StockItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode stock items: %w", err)
	}
	return items, nil
}

// UpsertItem creates or replaces a stock item record (onboarding path).
func (s *MongoStore) UpsertItem(ctx context.Context, item models.StockItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	_, err := s.coll(itemsColl).ReplaceOne(ctx, bson.M{"_id": item.ID}, item, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert stock item %s: %w", item.ID, err)
	}
	return nil
}

// RetireItem soft-retires an item. Items with audit history are never deleted.
func (s *MongoStore) RetireItem(ctx context.Context, itemID string) error {
	res, err := s.coll(itemsColl).UpdateOne(ctx, bson.M{"_id": itemID}, bson.M{"$set": bson.M{"retired": true}})
	if err != nil {
		return fmt.Errorf("retire stock item %s: %w", itemID, err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CommitTransaction applies the conditional balance write and appends the
// transaction inside one MongoDB session transaction. The balance filter
// carries the expected value, so a concurrent commit that landed first makes
// this one fail with ErrConflict instead of silently overwriting it.
func (s *MongoStore) CommitTransaction(ctx context.Context, upd repository.BalanceUpdate, tx models.Transaction) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sctx mongo.SessionContext) (interface{}, error) {
		set := bson.M{"currentBalance": upd.NewBalance}
		if upd.BatchNumber != "" {
			set["batchNumber"] = upd.BatchNumber
		}
		if upd.ExpiryDate != nil {
			set["expiryDate"] = upd.ExpiryDate
		}

		res, err := s.coll(itemsColl).UpdateOne(sctx,
			bson.M{"_id": upd.ItemID, "currentBalance": upd.ExpectedBalance},
			bson.M{"$set": set})
		if err != nil {
			return nil, fmt.Errorf("update balance for %s: %w", upd.ItemID, err)
		}
		if res.MatchedCount == 0 {
			exists, err := s.coll(itemsColl).CountDocuments(sctx, bson.M{"_id": upd.ItemID})
			if err != nil {
				return nil, fmt.Errorf("check item %s: %w", upd.ItemID, err)
			}
			if exists == 0 {
				return nil, repository.ErrNotFound
			}
			return nil, repository.ErrConflict
		}

		if _, err := s.coll(transactionsColl).InsertOne(sctx, tx); err != nil {
			return nil, fmt.Errorf("append transaction %s: %w", tx.ID, err)
		}
		return nil, nil
	})
	return err
}

// ListTransactions returns the item's register entries in commit order.
func (s *MongoStore) ListTransactions(ctx context.Context, itemID string) ([]models.Transaction, error) {
	cursor, err := s.coll(transactionsColl).Find(ctx, bson.M{"itemId": itemID},
		options.Find().SetSort(bson.M{"timestamp": 1}))
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", itemID, err)
	}
	var txs []models.Transaction
	if err := cursor.All(ctx, &txs); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return txs, nil
}

// EnqueueAudit stores an audit entry awaiting delivery to the compliance sink.
func (s *MongoStore) EnqueueAudit(ctx context.Context, entry models.AuditEntry) error {
	_, err := s.coll(auditPendingColl).InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("enqueue audit entry %s: %w", entry.ID, err)
	}
	return nil
}

// PendingAudits returns queued entries oldest-first for the retry flusher.
func (s *MongoStore) PendingAudits(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	cursor, err := s.coll(auditPendingColl).Find(ctx, bson.M{},
		options.Find().SetSort(bson.M{"timestamp": 1}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("list pending audit entries: %w", err)
	}
	var entries []models.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode pending audit entries: %w", err)
	}
	return entries, nil
}

// AckAudit removes a queued entry once the sink has confirmed it.
func (s *MongoStore) AckAudit(ctx context.Context, entryID string) error {
	_, err := s.coll(auditPendingColl).DeleteOne(ctx, bson.M{"_id": entryID})
	if err != nil {
		return fmt.Errorf("ack audit entry %s: %w", entryID, err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
