package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/config"
	requestRepo "github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/database/repository/request"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/services/notification"
)

const TypeSearchNudge = "chamado:search-nudge"

type searchNudgePayload struct {
	RequestID string `json:"requestId"`
	ClientID  string `json:"clientId"`
}

// Nudger enqueues delayed "still searching?" pushes. It implements
// dispatch.RetryNudger.
type Nudger struct {
	client *asynq.Client
}

// NewNudger builds the asynq client over the worker Redis DB.
func NewNudger() *Nudger {
	return &Nudger{client: asynq.NewClient(workerRedisOpt())}
}

func (n *Nudger) ScheduleSearchNudge(requestID, clientID string, delay time.Duration) error {
	payload, err := json.Marshal(searchNudgePayload{RequestID: requestID, ClientID: clientID})
	if err != nil {
		return fmt.Errorf("failed to marshal nudge payload: %w", err)
	}
	task := asynq.NewTask(TypeSearchNudge, payload)
	if _, err := n.client.Enqueue(task, asynq.ProcessIn(delay)); err != nil {
		return fmt.Errorf("failed to enqueue search nudge: %w", err)
	}
	return nil
}

// InitNudgeWorker runs the async worker in background.
func InitNudgeWorker(repo requestRepo.RequestRepository, notifSvc notification.NotificationService) {
	srv := asynq.NewServer(
		workerRedisOpt(),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSearchNudge, handleSearchNudge(repo, notifSvc))

	go func() {
		log.Println("[NudgeWorker] starting async worker...")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				log.Printf("[NudgeWorker] attempt %d/%d failed to start worker: %v", attempts, maxAttempts, err)
				if attempts == maxAttempts {
					log.Fatal("[NudgeWorker] max retry attempts reached, exiting")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
			} else {
				break
			}
		}
	}()
}

// handleSearchNudge pushes a reminder only if the chamado is still stuck in
// searching when the task fires; anything else means the client already
// moved on.
func handleSearchNudge(repo requestRepo.RequestRepository, notifSvc notification.NotificationService) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p searchNudgePayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			log.Printf("[NudgeWorker] invalid payload: %v", err)
			return err
		}

		req, err := repo.GetByID(ctx, p.RequestID)
		if err != nil {
			log.Printf("[NudgeWorker] failed to load request %s: %v", p.RequestID, err)
			return err
		}
		if models.NormalizeStatus(req.Status) != models.StatusSearching {
			return nil
		}

		return notifSvc.NotifyClient(ctx, p.ClientID,
			"Still looking for a provider",
			"Your chamado has no provider yet. Retry the search or cancel if you no longer need it.",
			map[string]string{"type": "search_nudge", "requestId": p.RequestID})
	}
}

func workerRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisWorkerDB,
	}
}
