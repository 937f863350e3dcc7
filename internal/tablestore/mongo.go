package tablestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoTable implements Table with one document per partition:
//
//	{_id: <partitionKey>, rows: {<rowKey>: {<column>: <value>}}, etag: <int64>}
//
// A batch is a single-document update, which MongoDB applies atomically.
// Timestamps are stored as BSON dates and keep millisecond precision.
type MongoTable struct {
	col *mongo.Collection
}

func NewMongoTable(col *mongo.Collection) *MongoTable {
	return &MongoTable{col: col}
}

type partitionDoc struct {
	ID   string            `bson:"_id"`
	Rows map[string]bson.M `bson:"rows"`
	ETag int64             `bson:"etag"`
}

func (m *MongoTable) Query(ctx context.Context, partitionKey string) (Page, error) {
	var doc partitionDoc
	if err := m.col.FindOne(ctx, bson.M{"_id": partitionKey}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return Page{}, nil
		}
		return Page{}, fmt.Errorf("query partition %q: %w", partitionKey, err)
	}
	return pageFromDoc(doc), nil
}

func (m *MongoTable) SubmitTransaction(ctx context.Context, partitionKey string, entities []Entity, ifMatch string) error {
	if err := validateBatch(partitionKey, entities); err != nil {
		return err
	}
	filter, upsert, err := batchFilter(partitionKey, ifMatch)
	if err != nil {
		return err
	}
	res, err := m.col.UpdateOne(ctx, filter, batchUpdate(entities), options.Update().SetUpsert(upsert))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// a conditional insert raced with another writer creating the partition
			return ErrPreconditionFailed
		}
		return fmt.Errorf("submit batch for %q: %w", partitionKey, err)
	}
	if !upsert && res.MatchedCount == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

func batchFilter(partitionKey, ifMatch string) (bson.M, bool, error) {
	switch ifMatch {
	case ETagAny:
		return bson.M{"_id": partitionKey}, true, nil
	case "":
		return bson.M{"_id": partitionKey, "etag": bson.M{"$exists": false}}, true, nil
	default:
		v, err := strconv.ParseInt(ifMatch, 10, 64)
		if err != nil {
			return nil, false, ErrPreconditionFailed
		}
		return bson.M{"_id": partitionKey, "etag": v}, false, nil
	}
}

func batchUpdate(entities []Entity) bson.M {
	set := bson.M{}
	for _, e := range entities {
		row := bson.M{}
		for k, v := range e.Properties {
			if t, ok := v.(time.Time); ok {
				v = t.UTC()
			}
			row[k] = v
		}
		set["rows."+e.RowKey] = row
	}
	update := bson.M{"$inc": bson.M{"etag": int64(1)}}
	if len(set) > 0 {
		update["$set"] = set
	}
	return update
}

func pageFromDoc(doc partitionDoc) Page {
	page := Page{ETag: strconv.FormatInt(doc.ETag, 10)}
	for rk, row := range doc.Rows {
		props := make(map[string]any, len(row))
		for k, v := range row {
			if dt, ok := v.(primitive.DateTime); ok {
				props[k] = dt.Time().UTC()
				continue
			}
			props[k] = v
		}
		page.Entities = append(page.Entities, Entity{PartitionKey: doc.ID, RowKey: rk, Properties: props})
	}
	return page
}

// errMongoUnconfigured is returned by OpenMongoTable when no collection name is given.
var errMongoUnconfigured = errors.New("tablestore: mongo table name missing")

// OpenMongoTable returns the table stored in the named collection.
func OpenMongoTable(client *mongo.Client, database, table string) (*MongoTable, error) {
	if table == "" {
		return nil, errMongoUnconfigured
	}
	return NewMongoTable(client.Database(database).Collection(table)), nil
}
