package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pilotlabs/console/internal/db/gorm"
	"github.com/pilotlabs/console/pkg/models"
)

// DispatchInterval is the idle poll interval of the queue consumer.
const DispatchInterval = 2 * time.Second

// DispatcherWorkers is the number of concurrent claim-process loops.
const DispatcherWorkers = 2

// MessageProcessor handles a single claimed queue message.
type MessageProcessor interface {
	Process(ctx context.Context, msg *models.PendingMessage) error
	IsAvailable() bool
}

// Dispatcher drains the durable pending-message queue: claim, process,
// finalize. Retry pacing is the poll interval; attempt bounding lives in
// the store's MarkFailed.
type Dispatcher struct {
	pendingStore *gorm.PendingMessageStore
	processor    MessageProcessor
	notify       <-chan struct{}
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewDispatcher creates a dispatcher. processor may be nil (no CLI found);
// the queue is then left untouched and rows stay pending.
func NewDispatcher(pendingStore *gorm.PendingMessageStore, processor MessageProcessor, notify <-chan struct{}) *Dispatcher {
	return &Dispatcher{
		pendingStore: pendingStore,
		processor:    processor,
		notify:       notify,
		done:         make(chan struct{}),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < DispatcherWorkers; i++ {
		g.Go(func() error {
			d.loop(gctx)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(d.done)
	}()

	log.Info().Int("workers", DispatcherWorkers).Msg("Dispatcher started")
}

// Stop shuts the worker pool down and waits for in-flight work.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	log.Info().Msg("Dispatcher stopped")
}

func (d *Dispatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.notify:
		}

		d.drain(ctx)
	}
}

// drain claims and processes messages until the queue is empty or the
// processor stops accepting work.
func (d *Dispatcher) drain(ctx context.Context) {
	if d.processor == nil {
		return
	}

	for d.processor.IsAvailable() {
		msg, err := d.pendingStore.ClaimNext(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to claim next message")
			return
		}
		if msg == nil {
			return
		}

		if err := d.processor.Process(ctx, msg); err != nil {
			log.Warn().
				Err(err).
				Int64("messageId", msg.ID).
				Int("retryCount", msg.RetryCount).
				Msg("Message processing failed")
			if err := d.pendingStore.MarkFailed(ctx, msg.ID); err != nil {
				log.Error().Err(err).Int64("messageId", msg.ID).Msg("Failed to record failure")
			}
			continue
		}

		if err := d.pendingStore.MarkProcessed(ctx, msg.ID); err != nil {
			log.Error().Err(err).Int64("messageId", msg.ID).Msg("Failed to mark message processed")
		}
	}
}
