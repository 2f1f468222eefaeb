package mail_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/auth-core/internal/mail"
	"github.com/pribylovaa/auth-core/mocks"
)

func TestQueue_HandsRenderedMessageToSender(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)

	r, err := mail.NewRenderer()
	require.NoError(t, err)
	msg, err := r.Render(mail.KindPasswordReset, "ada@example.com", mail.LinkData{
		FirstName: "Ada",
		Link:      "https://example.com/api/v1/auth/reset-password/tok",
	})
	require.NoError(t, err)

	gomock.InOrder(
		sender.EXPECT().Send(gomock.Any(), msg).
			DoAndReturn(func(ctx context.Context, _ mail.Message) error {
				_, ok := ctx.Deadline()
				require.True(t, ok)
				return errors.New("smtp: 451 try again later")
			}),
		sender.EXPECT().Send(gomock.Any(), msg).Return(nil),
	)

	q := mail.NewQueue(sender, 4, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	q.Start()

	// Ошибка отправки не останавливает воркер: второе письмо уходит.
	require.NoError(t, q.Enqueue(msg))
	require.NoError(t, q.Enqueue(msg))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	require.ErrorIs(t, q.Enqueue(msg), mail.ErrQueueClosed)
}
