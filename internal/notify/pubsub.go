package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventNewWeatherAvailable is the event_type of published notifications.
const EventNewWeatherAvailable = "new_weather_available"

// Publisher sends one message and waits for the server acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) (serverID string, err error)
}

// PubSubSinkConfig holds configuration for the Pub/Sub sink.
type PubSubSinkConfig struct {
	Publisher Publisher
	Logger    zerolog.Logger

	// PublishTimeout bounds each publish. Default: 10 seconds
	PublishTimeout time.Duration

	// Now is the clock used for the published timestamp. Default: time.Now
	Now func() time.Time
}

// PubSubSink publishes a notification event to a Pub/Sub topic. Publishing
// happens in the background; the result is only logged.
type PubSubSink struct {
	publisher Publisher
	logger    zerolog.Logger
	timeout   time.Duration
	now       func() time.Time
	wg        sync.WaitGroup
}

// NotificationEvent is the payload of a published notification.
type NotificationEvent struct {
	EventType   string    `json:"event_type"`
	EventID     string    `json:"event_id"`
	PublishedAt time.Time `json:"published_at"`
}

// NewPubSubSink creates a new Pub/Sub notification sink.
func NewPubSubSink(cfg PubSubSinkConfig) *PubSubSink {
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PubSubSink{
		publisher: cfg.Publisher,
		logger:    cfg.Logger.With().Str("component", "notify.pubsub").Logger(),
		timeout:   cfg.PublishTimeout,
		now:       cfg.Now,
	}
}

// NotifyNewWeatherAvailable starts publishing an event and returns immediately.
func (s *PubSubSink) NotifyNewWeatherAvailable(ctx context.Context) {
	event := NotificationEvent{
		EventType:   EventNewWeatherAvailable,
		EventID:     uuid.NewString(),
		PublishedAt: s.now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode notification")
		return
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": event.EventType,
			"event_id":   event.EventID,
		},
	}

	// The publish outlives the caller's cycle.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		serverID, err := s.publisher.Publish(pubCtx, msg)
		if err != nil {
			s.logger.Error().Err(err).Str("event_id", event.EventID).Msg("failed to publish notification")
			return
		}
		s.logger.Info().
			Str("event_id", event.EventID).
			Str("server_id", serverID).
			Msg("notification published")
	}()
}

// Wait blocks until every in-flight publish has finished.
func (s *PubSubSink) Wait() {
	s.wg.Wait()
}

// TopicPublisher adapts a pubsub.Publisher to Publisher.
type TopicPublisher struct {
	publisher *pubsub.Publisher
}

// NewTopicPublisher creates a publisher for topic using client.
func NewTopicPublisher(client *pubsub.Client, topic string) *TopicPublisher {
	return &TopicPublisher{publisher: client.Publisher(topic)}
}

// Publish sends msg and waits for the server ID.
func (p *TopicPublisher) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publishing message: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages and stops the publisher.
func (p *TopicPublisher) Stop() {
	p.publisher.Stop()
}

var (
	_ Sink      = (*PubSubSink)(nil)
	_ Publisher = (*TopicPublisher)(nil)
)
