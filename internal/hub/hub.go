// FleetLens - Fleet Monitoring and Live Streaming Backend
// Copyright 2026 FleetLens contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetlens/fleetlens

// Package hub is the in-process topic-based publish/subscribe exchange that
// connects the ingestion services to the websocket gateway.
//
// Delivery guarantees are deliberately weak: per-topic publish order is
// preserved for each live subscriber, there is no ordering across topics,
// and late subscribers see no backlog. Publishing is fire-and-forget; an
// unhealthy hub degrades to logged drops and never fails the originating
// ingestion request.
package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/fleetlens/fleetlens/internal/logging"
	"github.com/fleetlens/fleetlens/internal/metrics"
	"github.com/fleetlens/fleetlens/internal/models"
)

// TopicMonitoring is the global feed carrying every device's heartbeat and
// recording events for the admin monitoring dashboard.
const TopicMonitoring = "monitoring"

// DeviceTopic is the per-device feed (heartbeats, recordings, idle alerts
// for one device).
func DeviceTopic(deviceID string) string {
	return "device." + deviceID
}

// DeviceStreamInTopic is the agent-ingress live-stream feed: the agent's
// gateway connection publishes raw frame events here.
func DeviceStreamInTopic(deviceID string) string {
	return "device." + deviceID + ".stream.in"
}

// DeviceStreamOutTopic is the viewer-egress live-stream feed: the relay
// republishes ingress frames here for watching admins.
func DeviceStreamOutTopic(deviceID string) string {
	return "device." + deviceID + ".stream.out"
}

// Broadcaster is the publishing half of the hub, consumed by the ingestion
// services.
type Broadcaster interface {
	// Publish sends event to topic. It never returns an error: broadcast
	// failures are absorbed, logged, and counted.
	Publish(topic string, event models.Event)
}

// Hub implements topic pub/sub on Watermill's in-process GoChannel
// transport, with a circuit breaker in front of publishes so a wedged
// subscriber cannot stall ingestion for long.
type Hub struct {
	pubsub  *gochannel.GoChannel
	breaker *gobreaker.CircuitBreaker[any]
}

// New creates a started hub.
func New() *Hub {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 256,
		},
		newWatermillLogger(),
	)

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "hub-publish",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Hub{pubsub: pubsub, breaker: breaker}
}

// Publish sends event to topic, fire-and-forget.
func (h *Hub) Publish(topic string, event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.HubPublishFailures.Inc()
		logging.Error().Err(err).Str("topic", topic).Str("event", event.Type).
			Msg("broadcast event marshal failed, dropping")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	_, err = h.breaker.Execute(func() (any, error) {
		return nil, h.pubsub.Publish(topic, msg)
	})
	if err != nil {
		metrics.HubPublishFailures.Inc()
		logging.Warn().Err(err).Str("topic", topic).Str("event", event.Type).
			Msg("broadcast publish failed, dropping")
		return
	}
	metrics.HubPublishes.WithLabelValues(event.Type).Inc()
}

// PublishRaw sends an already-encoded payload to topic, fire-and-forget.
// The live-stream relay uses it so frames reach viewers byte-for-byte as
// the agent sent them.
func (h *Hub) PublishRaw(topic string, payload []byte) {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	_, err := h.breaker.Execute(func() (any, error) {
		return nil, h.pubsub.Publish(topic, msg)
	})
	if err != nil {
		metrics.HubPublishFailures.Inc()
		logging.Warn().Err(err).Str("topic", topic).Msg("raw publish failed, dropping")
		return
	}
	metrics.HubPublishes.WithLabelValues(models.EventFrame).Inc()
}

// Subscribe returns a channel of events published to topic after this call.
// The subscription ends when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := h.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return ch, nil
}

// Close shuts down the transport, terminating all subscriptions.
func (h *Hub) Close() error {
	return h.pubsub.Close()
}

// DecodeEvent unmarshals a hub message back into an Event envelope.
func DecodeEvent(msg *message.Message) (models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return models.Event{}, fmt.Errorf("decode hub event: %w", err)
	}
	return event, nil
}
