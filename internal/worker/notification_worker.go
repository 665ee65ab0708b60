package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/hotelportal/account-recovery/internal/events"
	"github.com/hotelportal/account-recovery/internal/service"
)

// StartNotificationWorker registers the recovery notification handlers and
// closes the broker publisher once ctx is done.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, publisher events.Publisher, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()

	if publisher == nil {
		return
	}
	go func() {
		<-ctx.Done()
		publisher.Close()
		logger.Info("notification publisher closed")
	}()
}
