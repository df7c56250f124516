package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/kado-mall/api/internal/services"
)

// PubSubEventPublisher publishes pipeline events to per-concern Pub/Sub
// topics. It implements services.EventPublisher.
type PubSubEventPublisher struct {
	orderTopic      *pubsub.Topic
	syncTopic       *pubsub.Topic
	settlementTopic *pubsub.Topic
	marshal         func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(orderTopic, syncTopic, settlementTopic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if orderTopic == nil || syncTopic == nil || settlementTopic == nil {
		return nil, errors.New("pubsub event publisher: all topics are required")
	}
	return &PubSubEventPublisher{
		orderTopic:      orderTopic,
		syncTopic:       syncTopic,
		settlementTopic: settlementTopic,
		marshal:         json.Marshal,
	}, nil
}

// OrderPlaced announces a committed checkout line on the order topic.
func (p *PubSubEventPublisher) OrderPlaced(ctx context.Context, evt services.OrderPlacedEvent) error {
	if p == nil || p.orderTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	attrs := make(map[string]string)
	setAttr(attrs, "orderSerial", evt.OrderSerial)
	setAttr(attrs, "goodsId", evt.GoodsID)
	attrs["fanoutCount"] = strconv.Itoa(evt.FanoutCount)
	return p.publish(ctx, p.orderTopic, "order placed", evt, attrs)
}

// SyncCompleted announces a finished delivery sweep on the sync topic.
func (p *PubSubEventPublisher) SyncCompleted(ctx context.Context, evt services.SyncCompletedEvent) error {
	if p == nil || p.syncTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	attrs := make(map[string]string)
	setAttr(attrs, "subsiteId", evt.SubsiteID)
	attrs["success"] = strconv.Itoa(evt.SuccessCount)
	attrs["failed"] = strconv.Itoa(evt.FailedCount)
	return p.publish(ctx, p.syncTopic, "sync completed", evt, attrs)
}

// CommissionSettled announces a settlement run on the settlement topic.
func (p *PubSubEventPublisher) CommissionSettled(ctx context.Context, evt services.CommissionSettledEvent) error {
	if p == nil || p.settlementTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	attrs := make(map[string]string)
	setAttr(attrs, "subsiteId", evt.SubsiteID)
	attrs["settled"] = strconv.Itoa(evt.SettledCount)
	return p.publish(ctx, p.settlementTopic, "commission settled", evt, attrs)
}

func (p *PubSubEventPublisher) publish(ctx context.Context, topic *pubsub.Topic, kind string, payload any, attrs map[string]string) error {
	data, err := p.marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}
	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s event: %w", kind, err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
