package mail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func silentLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// recSender запоминает отправленные письма; может блокироваться и падать.
type recSender struct {
	mu    sync.Mutex
	sent  []Message
	gate  chan struct{}
	fail  error
	panic bool
}

func (s *recSender) Send(ctx context.Context, msg Message) error {
	if s.gate != nil {
		<-s.gate
	}
	if s.panic {
		panic("boom")
	}
	if s.fail != nil {
		return s.fail
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestRenderer_Verification(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	require.NoError(t, err)

	link := "https://example.com/api/v1/auth/account-activation/tok"
	msg, err := r.Render(KindVerification, "ada@example.com", LinkData{FirstName: "Ada", Link: link})
	require.NoError(t, err)

	require.Equal(t, "ada@example.com", msg.To)
	require.Equal(t, "Verify your email address to activate your account", msg.Subject)
	require.Contains(t, msg.Text, "Hi Ada,")
	require.Contains(t, msg.Text, link)
	require.Contains(t, msg.HTML, `href="`+link+`"`)
}

func TestRenderer_PasswordReset_EscapesHTML(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	require.NoError(t, err)

	msg, err := r.Render(KindPasswordReset, "a@b.c", LinkData{FirstName: "<script>", Link: "https://x/reset"})
	require.NoError(t, err)

	require.Equal(t, "Reset your password", msg.Subject)
	require.NotContains(t, msg.HTML, "<script>")
	require.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestRenderer_UnknownKind(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render(Kind("newsletter"), "a@b.c", LinkData{})
	require.Error(t, err)
}

func TestQueue_DeliversAndDrainsOnClose(t *testing.T) {
	t.Parallel()

	s := &recSender{}
	q := NewQueue(s, 10, 2, silentLog())
	q.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Message{Kind: KindVerification, To: "a@b.c"}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	require.Equal(t, 5, s.count())

	require.ErrorIs(t, q.Enqueue(Message{}), ErrQueueClosed)
	// повторный Close безопасен.
	require.NoError(t, q.Close(ctx))
}

func TestQueue_FullDoesNotBlock(t *testing.T) {
	t.Parallel()

	s := &recSender{gate: make(chan struct{})}
	q := NewQueue(s, 1, 1, silentLog())
	q.Start()

	// первое письмо забирает воркер (и блокируется на gate), второе ложится в буфер.
	require.NoError(t, q.Enqueue(Message{Kind: KindVerification}))
	require.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(Message{Kind: KindVerification}))

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(Message{Kind: KindVerification}) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}

	close(s.gate)
	require.NoError(t, q.Close(context.Background()))
	require.Equal(t, 2, s.count())
}

func TestQueue_SendFailureAndPanicAreContained(t *testing.T) {
	t.Parallel()

	failing := &recSender{fail: errors.New("smtp down")}
	q := NewQueue(failing, 2, 1, silentLog())
	q.Start()
	require.NoError(t, q.Enqueue(Message{Kind: KindPasswordReset}))
	require.NoError(t, q.Close(context.Background()))

	panicking := &recSender{panic: true}
	q = NewQueue(panicking, 2, 1, silentLog())
	q.Start()
	require.NoError(t, q.Enqueue(Message{Kind: KindPasswordReset}))
	require.NoError(t, q.Enqueue(Message{Kind: KindPasswordReset}))
	require.NoError(t, q.Close(context.Background()))
}

func TestLogSender_RedactsRecipient(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	s := NewLogSender(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, s.Send(context.Background(), Message{Kind: KindVerification, To: "ada@example.com", Subject: "S"}))
	require.Contains(t, buf.String(), "mail_logged")
	require.Contains(t, buf.String(), "ad***@example.com")
	require.NotContains(t, buf.String(), "ada@example.com")
}

func TestSMTPSender_CanceledContext(t *testing.T) {
	t.Parallel()

	s := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.Send(ctx, Message{To: "a@b.c"}), context.Canceled)
}
