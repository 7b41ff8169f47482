package requestRepo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// WatchStatusChanges tails the requests collection change stream and emits a
// StatusEvent for every status write, including ones performed by other
// instances. Consumers dedup by UpdatedAt, so double delivery is harmless.
// The goroutine exits when ctx is canceled.
func (r *MongoRequestRepo) WatchStatusChanges(ctx context.Context, logger *zap.Logger, out chan<- models.StatusEvent) error {
	pipeline := []bson.M{
		{"$match": bson.M{
			"operationType": bson.M{"$in": []string{"insert", "update", "replace"}},
		}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := r.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return err
	}

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			var change struct {
				FullDocument models.ServiceRequest `bson:"fullDocument"`
			}
			if err := stream.Decode(&change); err != nil {
				logger.Warn("failed to decode request change event", zap.Error(err))
				continue
			}
			doc := change.FullDocument
			if doc.ID == "" {
				continue
			}
			event := models.StatusEvent{
				RequestID:  doc.ID,
				Status:     models.NormalizeStatus(doc.Status),
				ProviderID: doc.ProviderID,
				UpdatedAt:  doc.UpdatedAt,
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				logger.Warn("status event consumer is lagging, dropping event",
					zap.String("requestId", event.RequestID))
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			logger.Error("request change stream closed", zap.Error(err))
		}
	}()

	return nil
}
