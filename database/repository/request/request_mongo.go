package requestRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// ErrNotFound is returned when a chamado does not exist.
var ErrNotFound = errors.New("service request not found")

// activeStatuses are the statuses a chamado can hold while still in flight.
var activeStatuses = []models.RequestStatus{
	models.StatusSearching,
	models.StatusAccepted,
	models.StatusNegotiating,
	models.StatusAwaitingPayment,
	models.StatusInService,
	models.StatusPendingClientConf,
}

// MongoRequestRepo is the MongoDB-backed RequestRepository.
type MongoRequestRepo struct {
	coll *mongo.Collection
}

// NewMongoRequestRepo builds a repository over the "requests" collection.
func NewMongoRequestRepo(db *mongo.Database) *MongoRequestRepo {
	return &MongoRequestRepo{coll: db.Collection("requests")}
}

func (r *MongoRequestRepo) Create(ctx context.Context, req *models.ServiceRequest) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, req); err != nil {
		return fmt.Errorf("failed to insert service request: %w", err)
	}
	return nil
}

func (r *MongoRequestRepo) GetByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var req models.ServiceRequest
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch service request %s: %w", id, err)
	}
	return &req, nil
}

func (r *MongoRequestRepo) Update(ctx context.Context, req *models.ServiceRequest) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": req.ID}, req)
	if err != nil {
		return fmt.Errorf("failed to update service request %s: %w", req.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRequestRepo) ListActiveByClient(ctx context.Context, clientID string) ([]models.ServiceRequest, error) {
	return r.listActive(ctx, bson.M{"clientId": clientID})
}

func (r *MongoRequestRepo) ListActiveByProvider(ctx context.Context, providerID string) ([]models.ServiceRequest, error) {
	return r.listActive(ctx, bson.M{"providerId": providerID})
}

func (r *MongoRequestRepo) listActive(ctx context.Context, filter bson.M) ([]models.ServiceRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter["status"] = bson.M{"$in": activeStatuses}
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list active service requests: %w", err)
	}
	defer cursor.Close(ctx)

	var reqs []models.ServiceRequest
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, fmt.Errorf("failed to decode service requests: %w", err)
	}
	return reqs, nil
}
