/*
scheduler.go - Automated poll closing

PURPOSE:
  Periodically finds polls whose expiry has passed, records their winners
  once, and tells subscribers the poll closed.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Closure is idempotent: the store keeps the first closure record, and
    polls that already have one are never listed again
  - Winners are recomputed from the vote rows; the closure record is an
    audit trail, not the source of truth for results

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  closer := NewPollCloser(store, feed, metrics)
  closer.Start()
  // ... later
  closer.Stop()

SEE ALSO:
  - polls/tally.go: Winners
  - store/sqlite/polls.go: ListUnclosedExpired, SaveClosure
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/house-ledger/changefeed"
	"github.com/warp/house-ledger/polls"
	"github.com/warp/house-ledger/store/sqlite"
)

// PollCloser closes expired polls in the background.
type PollCloser struct {
	Store         *sqlite.Store
	Feed          changefeed.Publisher
	Metrics       *Metrics
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewPollCloser(store *sqlite.Store, feed changefeed.Publisher, metrics *Metrics) *PollCloser {
	return &PollCloser{
		Store:         store,
		Feed:          feed,
		Metrics:       metrics,
		CheckInterval: time.Minute,
		Enabled:       true,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (pc *PollCloser) Start() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if !pc.Enabled {
		slog.Info("Poll closer disabled, not starting")
		return
	}
	if pc.ticker != nil {
		return
	}

	pc.ticker = time.NewTicker(pc.CheckInterval)
	pc.stop = make(chan struct{})
	pc.wg.Add(1)

	go pc.run()

	slog.Info("Poll closer started", "interval", pc.CheckInterval)
}

// Stop stops the scheduler and waits for a running check to finish.
func (pc *PollCloser) Stop() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.ticker != nil {
		pc.ticker.Stop()
		close(pc.stop)
		pc.wg.Wait()
		pc.ticker = nil
		slog.Info("Poll closer stopped")
	}
}

func (pc *PollCloser) run() {
	defer pc.wg.Done()

	// Run immediately on start
	pc.RunNow(context.Background())

	for {
		select {
		case <-pc.ticker.C:
			pc.RunNow(context.Background())
		case <-pc.stop:
			return
		}
	}
}

// RunNow closes every expired poll that has no closure yet and returns how
// many it closed.
func (pc *PollCloser) RunNow(ctx context.Context) int {
	now := pc.now()
	store := pc.Store.Polls()

	expired, err := store.ListUnclosedExpired(ctx, now)
	if err != nil {
		slog.Error("Failed to list expired polls", "error", err)
		return 0
	}

	closed := 0
	for _, poll := range expired {
		if err := pc.close(ctx, store, poll, now); err != nil {
			slog.Error("Failed to close poll", "poll_id", poll.ID, "error", err)
			continue
		}
		closed++
	}
	if closed > 0 {
		slog.Info("Closed expired polls", "count", closed)
	}
	return closed
}

func (pc *PollCloser) close(ctx context.Context, store *sqlite.PollStore, poll polls.Poll, now time.Time) error {
	options, err := store.ListOptions(ctx, poll.ID)
	if err != nil {
		return err
	}
	votes, err := store.ListVotes(ctx, poll.ID)
	if err != nil {
		return err
	}

	winners := polls.Winners(poll, options, votes, now)
	ids := make([]polls.OptionID, len(winners))
	for i, w := range winners {
		ids[i] = w.ID
	}
	if err := store.SaveClosure(ctx, poll.ID, ids, now); err != nil {
		return err
	}

	slog.Info("Poll closed", "poll_id", poll.ID, "house_id", poll.HouseID, "winners", len(ids), "votes", len(votes))
	if pc.Metrics != nil {
		pc.Metrics.PollsClosed.Inc()
	}
	if pc.Feed != nil {
		err := pc.Feed.Publish(ctx, changefeed.Event{
			HouseID:  poll.HouseID,
			Table:    changefeed.TablePolls,
			Op:       changefeed.OpClose,
			RecordID: string(poll.ID),
			At:       now,
		})
		if err != nil {
			slog.Warn("Failed to publish poll closure", "poll_id", poll.ID, "error", err)
		}
	}
	return nil
}

func (pc *PollCloser) now() time.Time {
	if pc.Now == nil {
		return time.Now().UTC()
	}
	return pc.Now().UTC()
}
