package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/forecastsync/forecastsync/internal/syncer"
)

// JobTypeForecastSync is the job_type of a message that requests a sync cycle.
const JobTypeForecastSync = "forecast_sync"

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	messages         *MessageHandler
	logger           zerolog.Logger
}

// MessageHandler decodes sync requests and runs them. It is the transport
// independent part of PubSubHandler.
type MessageHandler struct {
	syncJob *SyncJob
	logger  zerolog.Logger
}

// NewMessageHandler creates a handler that runs job for each sync request.
func NewMessageHandler(job *SyncJob, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{syncJob: job, logger: logger}
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	// Client is shared with the notification publisher.
	Client           *pubsub.Client
	SubscriptionName string
	SyncJob          *SyncJob
	Logger           zerolog.Logger
}

// SyncMessage represents a sync job message.
type SyncMessage struct {
	JobType string `json:"job_type"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(cfg PubSubConfig) (*PubSubHandler, error) {
	if cfg.Client == nil {
		return nil, errors.New("pubsub client is required")
	}

	logger := cfg.Logger.With().Str("component", "pubsub").Logger()
	subscriber := cfg.Client.Subscriber(cfg.SubscriptionName)

	// One cycle at a time; more outstanding messages would only be dropped.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           cfg.Client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		messages:         NewMessageHandler(cfg.SyncJob, logger),
		logger:           logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()

		if h.messages.Handle(logger.WithContext(ctx), msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Handle processes one message body and reports whether it should be acked.
// Every message the handler has dealt with is acked, failed cycles and
// unreadable bodies included: the next scheduled or requested cycle is the
// retry, not a redelivery. Only a cycle cut short by ctx ending is nacked so
// another subscriber can pick the request up.
func (h *MessageHandler) Handle(ctx context.Context, data []byte) bool {
	startTime := time.Now()
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &h.logger
	}

	logger.Debug().Msg("received pubsub message")

	var syncMsg SyncMessage
	if err := json.Unmarshal(data, &syncMsg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message, dropping")
		return true
	}

	var err error
	switch syncMsg.JobType {
	case JobTypeForecastSync:
		err = h.handleForecastSync(ctx, logger)
	default:
		logger.Warn().Str("job_type", syncMsg.JobType).Msg("unknown job type")
		return true
	}

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			logger.Warn().Err(err).Msg("job interrupted, message will be redelivered")
			return false
		}
		logger.Error().Err(err).Msg("job failed, not retrying")
		return true
	}

	logger.Info().
		Str("job_type", syncMsg.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}

func (h *MessageHandler) handleForecastSync(ctx context.Context, logger *zerolog.Logger) error {
	result, err := h.syncJob.Run(ctx, TriggerPubSub)
	if errors.Is(err, syncer.ErrCycleInProgress) {
		// The running cycle serves this request.
		return nil
	}
	if err != nil {
		return fmt.Errorf("forecast sync: %w", err)
	}

	logger.Info().
		Str("cycle_id", result.CycleID).
		Str("outcome", string(result.Outcome)).
		Int("rows_replaced", result.RowsReplaced).
		Msg("forecast sync completed")
	return nil
}
