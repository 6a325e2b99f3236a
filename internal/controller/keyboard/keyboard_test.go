package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallback(t *testing.T) {
	action, id, err := ParseCallback(CallbackData(ActionAccept, 12))
	require.NoError(t, err)
	assert.Equal(t, ActionAccept, action)
	assert.Equal(t, int64(12), id)

	action, id, err = ParseCallback("req:reject:7")
	require.NoError(t, err)
	assert.Equal(t, ActionReject, action)
	assert.Equal(t, int64(7), id)

	for _, bad := range []string{"", "req:", "req:accept", "req:accept:x", "req:accept:0", "req:delete:3", "ses:accept:3"} {
		_, _, err := ParseCallback(bad)
		assert.ErrorIs(t, err, ErrInvalidCallback, bad)
	}
}

func TestRequestActions(t *testing.T) {
	markup := RequestActions(5)
	require.Len(t, markup.InlineKeyboard, 1)
	row := markup.InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.Equal(t, "req:accept:5", row[0].CallbackData)
	assert.Equal(t, "req:reject:5", row[1].CallbackData)
}

func TestBuilderSkipsEmptyRows(t *testing.T) {
	markup := NewBuilder().Row().Row(Button("a", "b")).Build()
	assert.Len(t, markup.InlineKeyboard, 1)
}
