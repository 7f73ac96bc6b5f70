package journal

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/rebasefi/stbt-ledger/internal/events"
)

// Writer turns published events into journal entries. Publishing never
// blocks on the database: entries are queued and written by Run.
type Writer struct {
	journal Journal
	queue   chan Entry
	clock   func() time.Time
	logger  *zap.SugaredLogger
}

func NewWriter(j Journal, buffer int, logger *zap.SugaredLogger) *Writer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Writer{
		journal: j,
		queue:   make(chan Entry, buffer),
		clock:   time.Now,
		logger:  logger,
	}
}

// Sink returns an events.Sink that tags entries with domain.
func (w *Writer) Sink(domain string) events.Sink {
	return events.SinkFunc(func(evts ...events.Event) {
		for _, e := range evts {
			body, err := json.Marshal(e)
			if err != nil {
				w.logger.Warnw("Event not journaled", "event", e.EventName(), "error", err)
				continue
			}
			entry := Entry{Domain: domain, Name: e.EventName(), Body: body, At: w.clock().UTC()}
			select {
			case w.queue <- entry:
			default:
				w.logger.Warnw("Journal queue full, event dropped", "domain", domain, "event", entry.Name)
			}
		}
	})
}

// Run writes queued entries until ctx is done, then drains what is left.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case e := <-w.queue:
			w.write(ctx, w.collect(e))
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case e := <-w.queue:
					w.write(flushCtx, w.collect(e))
				default:
					return
				}
			}
		}
	}
}

// collect gathers first plus whatever else is already queued.
func (w *Writer) collect(first Entry) []Entry {
	batch := []Entry{first}
	for len(batch) < 128 {
		select {
		case e := <-w.queue:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

func (w *Writer) write(ctx context.Context, batch []Entry) {
	if err := w.journal.Append(ctx, batch...); err != nil {
		w.logger.Errorw("Journal append failed", "count", len(batch), "error", err)
	}
}
