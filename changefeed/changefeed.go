/*
Package changefeed publishes "something changed in house X" notifications.

PURPOSE:
  Nothing derived is stored, so a client showing balances or poll results
  only needs to know WHEN to recompute. Every successful write publishes an
  Event on the house's channel; subscribers re-read and re-run the pure
  computations.

DELIVERY:
  Advisory and at-most-once. A slow subscriber may miss events; it must
  tolerate recomputing over a superset of what changed.

CHANNELS:
  One per house: "house:<house id>". Subscribers only ever see events of
  the house they subscribed to.

IMPLEMENTATIONS:
  - Memory: in-process fan-out (tests, single instance)
  - Redis:  go-redis pub/sub (several API instances)

SEE ALSO:
  - api/handlers.go: publishes after writes
  - api/scheduler.go: publishes when a poll closes
*/
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/house-ledger/ledger"
)

type Table string

const (
	TableHouses        Table = "houses"
	TableMembers       Table = "house_members"
	TableExpenses      Table = "expenses"
	TableContributions Table = "contributions"
	TableVotes         Table = "poll_votes"
	TablePolls         Table = "polls"
)

type Op string

const (
	OpInsert Op = "insert"
	OpDelete Op = "delete"
	OpClose  Op = "close"
)

// Event says one row of Table changed in HouseID.
type Event struct {
	HouseID  ledger.HouseID `json:"house_id"`
	Table    Table          `json:"table"`
	Op       Op             `json:"op"`
	RecordID string         `json:"record_id"`
	At       time.Time      `json:"at"`
}

// Channel is the pub/sub channel name of a house.
func Channel(house ledger.HouseID) string {
	return "house:" + string(house)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Subscriber interface {
	// Subscribe delivers house's events on the returned channel until cancel
	// is called or ctx is done. The channel is closed afterwards.
	Subscribe(ctx context.Context, house ledger.HouseID) (events <-chan Event, cancel func(), err error)
}

// Broker is both ends of the feed.
type Broker interface {
	Publisher
	Subscriber
	Close() error
}

func encode(e Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}

func decode(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}
