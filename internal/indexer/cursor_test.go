package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memrepository "prophyt/internal/repository/memory"
)

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 10))
	assert.Equal(t, "ab", truncateUTF8("abc", 2))
	// "é" is two bytes; cutting at 2 would split it.
	assert.Equal(t, "a", truncateUTF8("aé", 2))
	assert.Equal(t, "ok", truncateUTF8("o\xffk", 10))
}

func TestCursorStore_RecordErrorKeepsValidUTF8(t *testing.T) {
	store := memrepository.New()
	cursors := NewCursorStore(store)
	ctx := context.Background()

	msg := "xx" + strings.Repeat("市场", 400)
	require.NoError(t, cursors.RecordError(ctx, "prediction_market::BetPlaced", errors.New(msg)))

	row, err := store.GetCursor(ctx, "prediction_market::BetPlaced")
	require.NoError(t, err)
	require.NotNil(t, row)
	require.NotNil(t, row.LastError)
	assert.True(t, utf8.ValidString(*row.LastError))
	assert.LessOrEqual(t, len(*row.LastError), maxCursorErrorLen)
	assert.Equal(t, 998, len(*row.LastError))
}
