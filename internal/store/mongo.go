package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/roach88/structprune/internal/split"
)

// Collection names used by the Split modulestore.
const (
	activeVersionsCollection = "modulestore.active_versions"
	structuresCollection     = "modulestore.structures"
)

// Mongo is the production Store over a Split modulestore database.
type Mongo struct {
	client         *mongo.Client
	activeVersions *mongo.Collection
	structures     *mongo.Collection
}

type structureDoc struct {
	ID              primitive.ObjectID  `bson:"_id"`
	OriginalVersion primitive.ObjectID  `bson:"original_version"`
	PreviousVersion *primitive.ObjectID `bson:"previous_version"`
}

type activeVersionDoc struct {
	ID       primitive.ObjectID             `bson:"_id"`
	Versions map[string]*primitive.ObjectID `bson:"versions"`
	EditedOn time.Time                      `bson:"edited_on"`
	Org      string                         `bson:"org"`
	Course   string                         `bson:"course"`
	Run      string                         `bson:"run"`
}

var structureProjection = bson.D{
	{Key: "original_version", Value: 1},
	{Key: "previous_version", Value: 1},
}

// OpenMongo connects to uri and verifies the primary is reachable.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, split.NewStoreUnavailable("connect mongo", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, split.NewStoreUnavailable("ping mongo", err)
	}

	db := client.Database(database)
	return &Mongo{
		client:         client,
		activeVersions: db.Collection(activeVersionsCollection),
		structures:     db.Collection(structuresCollection),
	}, nil
}

// Close implements Store.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// IterateActiveBranches implements Store. Each active version document
// yields one branch per entry of its versions map.
func (m *Mongo) IterateActiveBranches(ctx context.Context, fn func(split.Branch) error) error {
	cur, err := m.activeVersions.Find(ctx, bson.D{})
	if err != nil {
		return split.NewStoreUnavailable("find active versions", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc activeVersionDoc
		if err := cur.Decode(&doc); err != nil {
			return split.NewStoreUnavailable("decode active version", err)
		}
		for _, b := range doc.branches() {
			if err := fn(b); err != nil {
				return err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return split.NewStoreUnavailable("iterate active versions", err)
	}
	return nil
}

func (d activeVersionDoc) branches() []split.Branch {
	key := d.Org + "+" + d.Course + "+" + d.Run
	out := make([]split.Branch, 0, len(d.Versions))
	for name, sid := range d.Versions {
		if sid == nil {
			continue
		}
		out = append(out, split.Branch{
			ActiveVersionID: d.ID.Hex(),
			Name:            name,
			StructureID:     sid.Hex(),
			Key:             key,
			EditedOn:        d.EditedOn,
		})
	}
	split.SortBranches(out)
	return out
}

// IterateStructures implements Store. The cursor batch size matches
// b.Size and the adapter pauses after every b.Size documents.
func (m *Mongo) IterateStructures(ctx context.Context, b Batch, fn func(split.Structure) error) error {
	opts := options.Find().
		SetProjection(structureProjection).
		SetBatchSize(int32(b.size()))
	cur, err := m.structures.Find(ctx, bson.D{}, opts)
	if err != nil {
		return split.NewStoreUnavailable("find structures", err)
	}
	defer cur.Close(ctx)

	n := 0
	for cur.Next(ctx) {
		if n > 0 && n%b.size() == 0 {
			if err := b.Pause(ctx); err != nil {
				return err
			}
		}
		n++

		var doc structureDoc
		if err := cur.Decode(&doc); err != nil {
			return split.NewStoreUnavailable("decode structure", err)
		}
		if err := fn(doc.structure()); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return split.NewStoreUnavailable("iterate structures", err)
	}
	return nil
}

func (d structureDoc) structure() split.Structure {
	s := split.Structure{ID: d.ID.Hex(), OriginalID: d.OriginalVersion.Hex()}
	if d.PreviousVersion != nil {
		s.PreviousID = d.PreviousVersion.Hex()
	}
	return s
}

// GetStructure implements Store.
func (m *Mongo) GetStructure(ctx context.Context, id string) (split.Structure, bool, error) {
	oid, err := objectID(id)
	if err != nil {
		return split.Structure{}, false, err
	}

	var doc structureDoc
	err = m.structures.FindOne(ctx, bson.D{{Key: "_id", Value: oid}},
		options.FindOne().SetProjection(structureProjection)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return split.Structure{}, false, nil
	}
	if err != nil {
		return split.Structure{}, false, split.NewStoreUnavailable("find structure", err).WithID(id)
	}
	return doc.structure(), true, nil
}

// UpdatePreviousIDs implements Store with one unordered bulk write of
// UpdateOne models per batch.
func (m *Mongo) UpdatePreviousIDs(ctx context.Context, relinks []split.Relink, b Batch) ([]BatchResult, error) {
	var results []BatchResult
	err := ForEachBatch(ctx, len(relinks), b, func(index, lo, hi int) error {
		models := make([]mongo.WriteModel, 0, hi-lo)
		for _, r := range relinks[lo:hi] {
			sid, err := objectID(r.StructureID)
			if err != nil {
				return err
			}
			pid, err := objectID(r.PreviousID)
			if err != nil {
				return err
			}
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.D{{Key: "_id", Value: sid}}).
				SetUpdate(bson.D{{Key: "$set", Value: bson.D{{Key: "previous_version", Value: pid}}}}))
		}

		res, err := m.structures.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
		if err != nil {
			return classifyWrite("update previous_id", index, len(models), err)
		}
		results = append(results, BatchResult{
			Index:     index,
			Requested: len(models),
			Matched:   int(res.MatchedCount),
			Modified:  int(res.ModifiedCount),
		})
		return nil
	})
	return results, err
}

// DeleteStructures implements Store with one DeleteMany per batch.
func (m *Mongo) DeleteStructures(ctx context.Context, ids []string, b Batch) ([]BatchResult, error) {
	var results []BatchResult
	err := ForEachBatch(ctx, len(ids), b, func(index, lo, hi int) error {
		oids := make([]primitive.ObjectID, 0, hi-lo)
		for _, id := range ids[lo:hi] {
			oid, err := objectID(id)
			if err != nil {
				return err
			}
			oids = append(oids, oid)
		}

		res, err := m.structures.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}})
		if err != nil {
			return classifyWrite("delete structures", index, len(oids), err)
		}
		results = append(results, BatchResult{
			Index:     index,
			Requested: len(oids),
			Deleted:   int(res.DeletedCount),
		})
		return nil
	})
	return results, err
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, &split.Error{
			Kind:    split.KindBadConfiguration,
			Message: "structure id is not an ObjectId",
			ID:      id,
			Err:     err,
		}
	}
	return oid, nil
}

// classifyWrite maps a failed bulk write to PartialBatch when the server
// rejected some writes, and to StoreUnavailable otherwise.
func classifyWrite(op string, index, requested int, err error) error {
	var bwe mongo.BulkWriteException
	var we mongo.WriteException
	if errors.As(err, &bwe) || errors.As(err, &we) {
		return split.NewPartialBatch(op, index, requested, err)
	}
	return split.NewStoreUnavailable(op, err).WithDetail("batch", strconv.Itoa(index))
}
