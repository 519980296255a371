package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventSource identifies this service in published stream metadata.
const EventSource = "dealer-portal-scraper"

type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	Counts(ctx context.Context) (pending, deadLetter int64, err error)
}

// RelayObserver is notified of every publish attempt.
type RelayObserver interface {
	EventPublished(eventType string, ok bool)
}

type nopObserver struct{}

func (nopObserver) EventPublished(string, bool) {}

// Relay moves events from the outbox table to Redis streams.
type Relay struct {
	redis     RedisClient
	outbox    OutboxRepo
	observer  RelayObserver
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	maxLen    int64
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// StreamMaxLen approximately caps each stream. Zero keeps 100000 entries.
	StreamMaxLen int64
	Observer     RelayObserver
}

func NewRelay(outbox OutboxRepo, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.StreamMaxLen == 0 {
		config.StreamMaxLen = 100000
	}
	if config.Observer == nil {
		config.Observer = nopObserver{}
	}

	return &Relay{
		redis:     redisClient,
		outbox:    outbox,
		observer:  config.Observer,
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
		maxLen:    config.StreamMaxLen,
	}
}

// Start drains the outbox on every tick until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.drain(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain publishes full batches back to back so a burst of catalog changes
// does not wait one interval per batch.
func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.processEvents(ctx)
		if err != nil {
			r.logger.Error("failed to process events", "error", err)
			return
		}
		if n < r.batchSize {
			return
		}
	}
}

// processEvents publishes one batch and returns its size.
func (r *Relay) processEvents(ctx context.Context) (int, error) {
	events, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}

	published := 0
	for _, event := range events {
		if err := r.processEvent(ctx, event); err != nil {
			r.logger.Error("failed to process event",
				"event_id", event.ID,
				"event_type", event.EventType,
				"aggregate_id", event.AggregateID,
				"error", err)
			continue
		}
		published++
	}
	if len(events) > 0 {
		r.logger.Debug("outbox batch relayed", "events", len(events), "published", published)
	}
	return len(events), nil
}

func (r *Relay) processEvent(ctx context.Context, event *OutboxEvent) error {
	err := r.publishToRedis(ctx, event)
	r.observer.EventPublished(event.EventType, err == nil)
	if err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to mark event as failed", "event_id", event.ID, "error", markErr)
		}
		return err
	}
	return r.outbox.MarkProcessed(ctx, event.ID)
}

// streamEnvelope is the JSON document stored in the "data" field of every
// stream entry.
type streamEnvelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     string          `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      streamMetadata  `json:"metadata"`
}

type streamMetadata struct {
	Source       string `json:"source"`
	OutboxID     string `json:"outbox_id"`
	RetryCount   int    `json:"retry_count"`
	TargetStream string `json:"target_stream"`
}

// streamValues builds the flat fields of a stream entry. Catalog and job
// events expose their portal and key fields so consumers can filter
// without decoding the payload.
func streamValues(event *OutboxEvent) (map[string]any, error) {
	values := map[string]any{
		"type":           event.EventType,
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"original_id":    event.ID.String(),
		"timestamp":      strconv.FormatInt(event.CreatedAt.UnixNano(), 10),
	}

	switch event.EventType {
	case EventCatalogItemUpdated:
		var item CatalogItemUpdated
		if err := json.Unmarshal(event.Payload, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		if item.ItemCode == "" {
			return nil, fmt.Errorf("catalog event %s has no item code", event.ID)
		}
		values["portal"] = item.Portal
		values["item_code"] = item.ItemCode
		values["created"] = strconv.FormatBool(item.Created)
		if item.Price != nil {
			values["price"] = strconv.FormatFloat(*item.Price, 'f', -1, 64)
		}
	case EventScrapeJobFinished:
		var job ScrapeJobFinished
		if err := json.Unmarshal(event.Payload, &job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		values["portal"] = job.Portal
		values["job_id"] = job.JobID
		values["status"] = job.Status
	default:
		if !json.Valid(event.Payload) {
			return nil, fmt.Errorf("failed to unmarshal payload: invalid json")
		}
	}

	data, err := json.Marshal(streamEnvelope{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Timestamp:     event.CreatedAt.Format(time.RFC3339),
		Payload:       event.Payload,
		Metadata: streamMetadata{
			Source:       EventSource,
			OutboxID:     event.ID.String(),
			RetryCount:   event.RetryCount,
			TargetStream: event.TargetStream,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream data: %w", err)
	}
	values["data"] = string(data)
	return values, nil
}

func (r *Relay) publishToRedis(ctx context.Context, event *OutboxEvent) error {
	values, err := streamValues(event)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: event.TargetStream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: values,
	}
	if _, err := r.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Backlog reports how many events await publication and how many were
// dead-lettered.
func (r *Relay) Backlog(ctx context.Context) (pending, deadLetter int64, err error) {
	return r.outbox.Counts(ctx)
}
