package indexer

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"prophyt/internal/client/sui"
	"prophyt/internal/models"
	"prophyt/internal/repository"
)

// CursorStore tracks the last handled ledger position of each stream.
// Each stream has a single writer, its poller loop.
type CursorStore struct {
	Repo repository.CursorRepository
	Now  func() time.Time
}

func NewCursorStore(repo repository.CursorRepository) *CursorStore {
	return &CursorStore{Repo: repo}
}

// Get returns nil when the stream has no usable position and must start from genesis.
func (s *CursorStore) Get(ctx context.Context, stream string) (*sui.EventID, error) {
	row, err := s.Repo.GetCursor(ctx, stream)
	if err != nil {
		return nil, err
	}
	if !row.HasPosition() {
		return nil, nil
	}
	return &sui.EventID{TxDigest: *row.TxDigest, EventSeq: *row.EventSeq}, nil
}

// Set overwrites the stream position and adds processed to its running event count.
func (s *CursorStore) Set(ctx context.Context, stream string, pos sui.EventID, processed int) error {
	now := s.now()
	digest := pos.TxDigest
	seq := pos.EventSeq
	return s.Repo.SaveCursor(ctx, &models.EventCursor{
		Stream:        stream,
		TxDigest:      &digest,
		EventSeq:      &seq,
		LastSuccessAt: &now,
		LastAttemptAt: &now,
		EventsTotal:   int64(processed),
		UpdatedAt:     now,
	})
}

func (s *CursorStore) Clear(ctx context.Context, stream string) error {
	return s.Repo.DeleteCursor(ctx, stream)
}

// RecordError keeps the position and stores the failure for the streams API.
func (s *CursorStore) RecordError(ctx context.Context, stream string, cause error) error {
	if cause == nil {
		return nil
	}
	return s.Repo.RecordCursorError(ctx, stream, truncateUTF8(cause.Error(), maxCursorErrorLen), s.now())
}

const maxCursorErrorLen = 1000

// truncateUTF8 cuts s to at most n bytes on a rune boundary and drops invalid sequences.
func truncateUTF8(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (s *CursorStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
