package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"prophyt/internal/client/sui"
	"prophyt/internal/feed"
	memrepository "prophyt/internal/repository/memory"
)

const testPackage = "0xpkg"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ledgerEvent(kind EventKind, digest string, seq int, tsMs int64, body string) sui.Event {
	return sui.Event{
		ID:                sui.EventID{TxDigest: digest, EventSeq: fmt.Sprint(seq)},
		PackageID:         testPackage,
		TransactionModule: kind.Module(),
		Sender:            "0xsender",
		Type:              testPackage + "::" + kind.Stream(),
		ParsedJSON:        json.RawMessage(body),
		TimestampMs:       sui.Uint64String(tsMs),
	}
}

type recordingFeed struct {
	mu   sync.Mutex
	msgs []feed.Message
}

func (f *recordingFeed) Publish(msg feed.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *recordingFeed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func newTestHandler() (*Handler, *memrepository.Store, *recordingFeed) {
	store := memrepository.New()
	pub := &recordingFeed{}
	return &Handler{Repo: store, Feed: pub, Now: func() time.Time { return testNow }}, store, pub
}

// fakeLedger serves events per stream filter in ascending order.
type fakeLedger struct {
	mu     sync.Mutex
	events map[string][]sui.Event
	errs   []error
	panics int
	calls  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{events: map[string][]sui.Event{}}
}

func (l *fakeLedger) add(evs ...sui.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range evs {
		kind, err := ParseEventKind(ev.Type)
		if err != nil {
			panic(err)
		}
		key := kind.Filter(testPackage).MoveEventType
		l.events[key] = append(l.events[key], ev)
	}
}

func (l *fakeLedger) QueryEvents(_ context.Context, filter sui.EventFilter, cursor *sui.EventID, limit int, _ bool) (sui.EventPage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.panics > 0 {
		l.panics--
		panic("ledger exploded")
	}
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		return sui.EventPage{}, err
	}
	list := l.events[filter.MoveEventType]
	start := 0
	if cursor != nil {
		start = -1
		for i, ev := range list {
			if ev.ID == *cursor {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return sui.EventPage{}, fmt.Errorf("query: %w", sui.ErrCursorPruned)
		}
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	page := sui.EventPage{Data: append([]sui.Event(nil), list[start:end]...), HasNextPage: end < len(list)}
	if end > start {
		next := list[end-1].ID
		page.NextCursor = &next
	}
	return page, nil
}
