package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/Freeeeeet/tutoring_backend/internal/repository/memory"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	err  error
	sent []*bot.SendMessageParams
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.sent = append(f.sent, params)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{ID: len(f.sent)}, nil
}

func TestTelegramSink_SendsToLinkedChat(t *testing.T) {
	ctx := context.Background()
	contacts := memory.NewContacts()
	require.NoError(t, contacts.SetTelegramChatID(ctx, 7, 7007))

	sender := &fakeSender{}
	sink := NewTelegramSink(sender, contacts, zap.NewNop())

	n := notification(7)
	n.Title = "📨 Новая заявка"
	n.Body = "Заявка <важно> & срочно"
	require.NoError(t, sink.Send(ctx, n))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(7007), sender.sent[0].ChatID)
	assert.Equal(t, models.ParseModeHTML, sender.sent[0].ParseMode)
	assert.Equal(t, "<b>📨 Новая заявка</b>\n\nЗаявка &lt;важно&gt; &amp; срочно", sender.sent[0].Text)
}

func TestTelegramSink_SkipsUnlinkedRecipient(t *testing.T) {
	sender := &fakeSender{}
	sink := NewTelegramSink(sender, memory.NewContacts(), zap.NewNop())

	require.NoError(t, sink.Send(context.Background(), notification(8)))
	assert.Empty(t, sender.sent)
}

func TestTelegramSink_WrapsSendError(t *testing.T) {
	ctx := context.Background()
	contacts := memory.NewContacts()
	require.NoError(t, contacts.SetTelegramChatID(ctx, 9, 9009))

	sendErr := errors.New("bad gateway")
	sink := NewTelegramSink(&fakeSender{err: sendErr}, contacts, zap.NewNop())

	err := sink.Send(ctx, notification(9))
	require.Error(t, err)
	assert.ErrorIs(t, err, sendErr)
}
