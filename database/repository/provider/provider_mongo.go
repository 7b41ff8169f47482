package providerRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// ErrNotFound is returned when a provider does not exist.
var ErrNotFound = errors.New("provider not found")

// MongoGeoIndex is the MongoDB-backed GeoIndex over the providers collection.
// Requires a 2dsphere index on locationGeo.
type MongoGeoIndex struct {
	coll *mongo.Collection
}

// NewMongoGeoIndex builds the index over the "providers" collection.
func NewMongoGeoIndex(db *mongo.Database) *MongoGeoIndex {
	return &MongoGeoIndex{coll: db.Collection("providers")}
}

func (r *MongoGeoIndex) Query(ctx context.Context, q GeoQuery) ([]models.ProviderMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var pipeline mongo.Pipeline

	// 1) $geoNear: must come first to filter+sort by distance.
	pipeline = append(pipeline, bson.D{
		{Key: "$geoNear", Value: bson.D{
			{Key: "near", Value: bson.D{
				{Key: "type", Value: "Point"},
				{Key: "coordinates", Value: q.Origin.Coordinates},
			}},
			{Key: "distanceField", Value: "distance"},
			{Key: "spherical", Value: true},
			{Key: "maxDistance", Value: q.RadiusKm * 1000},
		}},
	})

	// 2) $match: online, offering the service, and not excluded.
	matchFilter := bson.M{
		"online":          true,
		"servicesOffered": q.ServiceType,
	}
	if len(q.Excluding) > 0 {
		matchFilter["_id"] = bson.M{"$nin": q.Excluding}
	}
	pipeline = append(pipeline, bson.D{{Key: "$match", Value: matchFilter}})

	// 3) $sort: nearest first.
	pipeline = append(pipeline, bson.D{{Key: "$sort", Value: bson.D{
		{Key: "distance", Value: 1},
	}}})

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("geo query failed: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		models.Provider `bson:",inline"`
		Distance        float64 `bson:"distance"` // meters, set by $geoNear
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode geo query results: %w", err)
	}

	matches := make([]models.ProviderMatch, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, models.ProviderMatch{
			ProviderID: row.ID,
			Name:       row.Name,
			Location:   row.LocationGeo,
			DistanceKm: row.Distance / 1000,
		})
	}
	return matches, nil
}

func (r *MongoGeoIndex) GetByID(ctx context.Context, providerID string) (*models.Provider, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var p models.Provider
	err := r.coll.FindOne(ctx, bson.M{"_id": providerID}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch provider %s: %w", providerID, err)
	}
	return &p, nil
}
