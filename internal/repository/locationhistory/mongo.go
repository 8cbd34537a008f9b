// Package locationhistory keeps the long-term trail of driver positions in
// MongoDB.
package locationhistory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tripshare/service-carpool/internal/application"
)

const collectionName = "trip_locations"

// Connect opens a MongoDB client and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

type locationDocument struct {
	TripID     string    `bson:"trip_id"`
	DriverID   string    `bson:"driver_id"`
	Lat        float64   `bson:"lat"`
	Lng        float64   `bson:"lng"`
	Heading    *float64  `bson:"heading,omitempty"`
	ETAMinutes *int      `bson:"eta_minutes,omitempty"`
	RecordedAt time.Time `bson:"recorded_at"`
}

// Store appends and reads driver positions.
type Store struct {
	collection *mongo.Collection
}

// NewStore uses the trip_locations collection of db.
func NewStore(db *mongo.Database) *Store {
	return &Store{collection: db.Collection(collectionName)}
}

// EnsureIndexes creates the (trip_id, recorded_at) index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "trip_id", Value: 1}, {Key: "recorded_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create location index: %w", err)
	}
	return nil
}

// Record appends one position.
func (s *Store) Record(ctx context.Context, u application.LocationUpdate) error {
	_, err := s.collection.InsertOne(ctx, locationDocument{
		TripID:     u.TripID.String(),
		DriverID:   u.DriverID.String(),
		Lat:        u.Lat,
		Lng:        u.Lng,
		Heading:    u.Heading,
		ETAMinutes: u.ETAMinutes,
		RecordedAt: u.RecordedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert location: %w", err)
	}
	return nil
}

// History returns a trip's positions in recording order, at most limit.
func (s *Store) History(ctx context.Context, tripID uuid.UUID, limit int64) ([]application.LocationUpdate, error) {
	opts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: 1}}).SetLimit(limit)
	cursor, err := s.collection.Find(ctx, bson.M{"trip_id": tripID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []locationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode locations: %w", err)
	}

	out := make([]application.LocationUpdate, 0, len(docs))
	for _, d := range docs {
		driverID, err := uuid.Parse(d.DriverID)
		if err != nil {
			return nil, fmt.Errorf("invalid driver id in location history: %w", err)
		}
		out = append(out, application.LocationUpdate{
			TripID:     tripID,
			DriverID:   driverID,
			Lat:        d.Lat,
			Lng:        d.Lng,
			Heading:    d.Heading,
			ETAMinutes: d.ETAMinutes,
			RecordedAt: d.RecordedAt,
		})
	}
	return out, nil
}
