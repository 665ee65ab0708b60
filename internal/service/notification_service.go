package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/hotelportal/account-recovery/internal/events"
)

// NotificationService forwards recovery events to the notification
// collaborator through a broker publisher.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  events.Publisher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, publisher events.Publisher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAccountLocked, n.forward)
	n.dispatcher.Subscribe(events.EventIncidentTicketOpened, n.forward)
	n.dispatcher.Subscribe(events.EventIncidentTicketResolved, n.forward)
	n.dispatcher.Subscribe(events.EventAccountUnlocked, n.forward)
	n.dispatcher.Subscribe(events.EventRecoveryInconsistency, n.handleInconsistency)
}

func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("account_id", event.AccountID),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return n.send(ctx, event)
}

// handleInconsistency raises the alert for approvals that did not unlock the account.
func (n *NotificationService) handleInconsistency(ctx context.Context, event events.Event) error {
	n.logger.Error("recovery inconsistency alert",
		zap.String("account_id", event.AccountID),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return n.send(ctx, event)
}

func (n *NotificationService) send(ctx context.Context, event events.Event) error {
	if n.publisher == nil {
		return nil
	}
	return n.publisher.Publish(ctx, string(event.Type), event)
}
