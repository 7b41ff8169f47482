package notification

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/utils"
)

// NotificationService sends fire-and-forget pushes to either party of a
// chamado. No response is expected; failures are logged by callers.
type NotificationService interface {
	NotifyClient(ctx context.Context, clientID, title, body string, data map[string]string) error
	NotifyProvider(ctx context.Context, providerID, title, body string, data map[string]string) error
}

// FCMNotificationService is the production implementation. Each account
// subscribes to its own FCM topic on sign-in, so pushes address topics and
// no token bookkeeping lives in this core.
type FCMNotificationService struct{}

// NewFCMNotificationService builds the FCM-backed notifier.
func NewFCMNotificationService() *FCMNotificationService {
	return &FCMNotificationService{}
}

func (s *FCMNotificationService) NotifyClient(ctx context.Context, clientID, title, body string, data map[string]string) error {
	return s.sendToTopic(ctx, "client-"+clientID, "client", title, body, data)
}

func (s *FCMNotificationService) NotifyProvider(ctx context.Context, providerID, title, body string, data map[string]string) error {
	return s.sendToTopic(ctx, "provider-"+providerID, "provider", title, body, data)
}

func (s *FCMNotificationService) sendToTopic(ctx context.Context, topic, role, title, body string, data map[string]string) error {
	if data == nil {
		data = map[string]string{}
	}
	if _, ok := data["role"]; !ok {
		data["role"] = role
	}

	msg := &messaging.Message{
		Topic: topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "high_priority",
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}

	if _, err := utils.FCMClient.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send FCM message to %s: %w", topic, err)
	}
	return nil
}
