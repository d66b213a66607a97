// Package kafkaconsumer runs the consumer group that applies parcel
// change events to the coordinate cache.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/agrimap/parcel-onboarding/internal/cadastral/region"
	obs "github.com/agrimap/parcel-onboarding/internal/core/observability"
	"github.com/agrimap/parcel-onboarding/internal/invalidation"
)

// Store is the slice of the coordinate cache the consumer drives.
type Store interface {
	InvalidateCoarseCells(ctx context.Context, reg region.Region, coarseCells []string) (int, error)
	InvalidateRef(ctx context.Context, reg region.Region, ref string) error
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	store  Store
	dedupe *refDedupe
}

func New(cfg Config, logger *slog.Logger, store Store) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, logger: logger, store: store, dedupe: newRefDedupe(0)}
}

// consumes parcel change events from kafka and applies them
func (c *Consumer) Start(ctx context.Context) error {
	if c.store == nil {
		return errors.New("kafkaconsumer: missing store")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// process a single parcel change message
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncConsumerError("decode")
		c.logger.Error("event decode failed",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return fmt.Errorf("json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		obs.IncConsumerError("validate")
		return fmt.Errorf("invalid event: %w", err)
	}

	reg := region.Region(ev.Region)

	var dedupeKey string
	if ev.CadastralReference != "" {
		dedupeKey = ev.Region + "/" + ev.CadastralReference
		if c.dedupe.stale(dedupeKey, ev.TS.UnixMilli()) {
			c.logger.Debug("skipping out-of-order event",
				"region", ev.Region, "ref", ev.CadastralReference, "ts", ev.TS)
			return nil
		}
	}

	cells, err := ev.CoarseCells()
	if err != nil {
		obs.IncConsumerError("cells")
		return fmt.Errorf("derive cells: %w", err)
	}

	dropped := 0
	if len(cells) > 0 {
		dropped, err = c.store.InvalidateCoarseCells(ctx, reg, cells)
		if err != nil {
			obs.IncConsumerError("cache_del")
			return fmt.Errorf("invalidate cells: %w", err)
		}
	}
	if ev.CadastralReference != "" {
		if err := c.store.InvalidateRef(ctx, reg, ev.CadastralReference); err != nil {
			obs.IncConsumerError("cache_del")
			return fmt.Errorf("invalidate ref: %w", err)
		}
	}

	if dedupeKey != "" {
		c.dedupe.record(dedupeKey, ev.TS.UnixMilli())
	}

	obs.AddInvalidatedKeys(dropped)
	c.logger.Debug("applied parcel change",
		"op", ev.Op, "region", ev.Region, "ref", ev.CadastralReference,
		"cells", len(cells), "dropped", dropped)
	return nil
}
