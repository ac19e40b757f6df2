package teamgames

import (
	"context"
	"time"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	EventClaimRequested = "claim_requested"
	EventItemGiven      = "item_given"
	EventItemDropped    = "item_dropped"
	EventItemFailed     = "item_failed"
	EventMessageRelayed = "message_relayed"
)

type PublisherEvent struct {
	Name      string            `json:"name,omitempty"`
	Id        string            `json:"id,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Value     string            `json:"value,omitempty"`
}

// The Publisher receives analytics-style events generated by store fulfillment.
//
// Implementations must safely handle concurrent calls and deal with their own errors, callers
// never repeat a call.
type Publisher interface {
	Send(ctx context.Context, logger runtime.Logger, userID string, events []*PublisherEvent)
}

// NakamaEventPublisher forwards events to the server's event pipeline.
type NakamaEventPublisher struct {
	nk runtime.NakamaModule
}

func NewNakamaEventPublisher(nk runtime.NakamaModule) *NakamaEventPublisher {
	return &NakamaEventPublisher{nk: nk}
}

func (p *NakamaEventPublisher) Send(ctx context.Context, logger runtime.Logger, userID string, events []*PublisherEvent) {
	for _, event := range events {
		properties := make(map[string]string, len(event.Metadata)+2)
		for k, v := range event.Metadata {
			properties[k] = v
		}
		properties["user_id"] = userID
		if event.Value != "" {
			properties["value"] = event.Value
		}

		evt := &api.Event{
			Name:       event.Name,
			Properties: properties,
			Timestamp:  timestamppb.New(time.Unix(event.Timestamp, 0)),
		}
		if err := p.nk.Event(ctx, evt); err != nil {
			logger.Error("Failed to publish event %s: %v", event.Name, err)
		}
	}
}

func newPublisherEvent(name, id string, now time.Time, metadata map[string]string) *PublisherEvent {
	return &PublisherEvent{
		Name:      name,
		Id:        id,
		Timestamp: now.Unix(),
		Metadata:  metadata,
	}
}

func (p *Plugin) publish(ctx context.Context, logger runtime.Logger, userID string, events ...*PublisherEvent) {
	for _, publisher := range p.publishers {
		publisher.Send(ctx, logger, userID, events)
	}
}
