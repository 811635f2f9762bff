package appserver

import (
	"context"

	"go.uber.org/zap"
)

// DeliveryTracker reports delivery progress of this subscriber back to the
// application server. Pushes do not carry a delivery id, so it works on the
// subscriber's delivery list: a shown push marks every pending delivery as
// delivered, a routed click marks the newest unopened delivery as opened.
type DeliveryTracker struct {
	client      *Client
	deviceToken string
	logger      *zap.Logger
	updates     chan DeliveryStatus
}

func NewDeliveryTracker(client *Client, deviceToken string, logger *zap.Logger) *DeliveryTracker {
	return &DeliveryTracker{
		client:      client,
		deviceToken: deviceToken,
		logger:      logger,
		updates:     make(chan DeliveryStatus, 16),
	}
}

// Delivered records that a notification was shown. It never blocks.
func (t *DeliveryTracker) Delivered() { t.enqueue(DeliveryDelivered) }

// Opened records that a notification click brought the user to its page.
// It never blocks.
func (t *DeliveryTracker) Opened() { t.enqueue(DeliveryOpened) }

func (t *DeliveryTracker) enqueue(status DeliveryStatus) {
	select {
	case t.updates <- status:
	default:
		t.logger.Warn("delivery update queue full", zap.String("status", string(status)))
	}
}

// Run sends queued updates until ctx is cancelled. Failures are logged and
// not retried.
func (t *DeliveryTracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case status := <-t.updates:
			if err := t.apply(ctx, status); err != nil {
				t.logger.Warn("failed to report delivery", zap.String("status", string(status)), zap.Error(err))
			}
		}
	}
}

func (t *DeliveryTracker) apply(ctx context.Context, status DeliveryStatus) error {
	deliveries, err := t.client.Deliveries(ctx, t.deviceToken)
	if err != nil {
		return err
	}

	switch status {
	case DeliveryDelivered:
		for _, d := range deliveries {
			if d.Status != DeliveryPending {
				continue
			}
			if err := t.client.MarkDelivered(ctx, d.ID); err != nil {
				return err
			}
		}

	case DeliveryOpened:
		for _, d := range deliveries {
			if d.Status == DeliveryOpened {
				continue
			}
			if d.Status == DeliveryPending {
				if err := t.client.MarkDelivered(ctx, d.ID); err != nil {
					return err
				}
			}
			return t.client.MarkOpened(ctx, d.ID)
		}
	}
	return nil
}
