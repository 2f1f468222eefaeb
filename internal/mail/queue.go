package mail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pribylovaa/auth-core/internal/pkg/redact"
)

var (
	// ErrQueueFull — очередь заполнена, письмо не принято.
	ErrQueueFull = errors.New("mail queue is full")
	// ErrQueueClosed — очередь остановлена.
	ErrQueueClosed = errors.New("mail queue is closed")
)

var mailJobs = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mail_jobs_total",
	Help: "Mail jobs by kind and result (enqueued, dropped, sent, failed).",
}, []string{"kind", "result"})

// Queue — ограниченная очередь писем с пулом воркеров.
// Enqueue никогда не блокирует: вызывающий получает лишь гарантию,
// что письмо принято в очередь. Ошибки отправки только логируются.
type Queue struct {
	sender  Sender
	log     *slog.Logger
	jobs    chan Message
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue создаёт очередь ёмкостью size с workers воркерами.
func NewQueue(sender Sender, size, workers int, log *slog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}

	return &Queue{
		sender:  sender,
		log:     log,
		jobs:    make(chan Message, size),
		workers: workers,
		timeout: 30 * time.Second,
	}
}

// Start запускает воркеров. Воркеры работают до Close.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Enqueue ставит письмо в очередь.
func (q *Queue) Enqueue(msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- msg:
		mailJobs.WithLabelValues(string(msg.Kind), "enqueued").Inc()
		return nil
	default:
		mailJobs.WithLabelValues(string(msg.Kind), "dropped").Inc()
		return ErrQueueFull
	}
}

// Close перестаёт принимать письма и ждёт, пока воркеры разберут очередь
// либо истечёт ctx.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for msg := range q.jobs {
		q.send(msg)
	}
}

func (q *Queue) send(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			mailJobs.WithLabelValues(string(msg.Kind), "failed").Inc()
			q.log.Error("mail_send_panic", slog.Any("reason", rec))
		}
	}()

	if err := q.sender.Send(ctx, msg); err != nil {
		mailJobs.WithLabelValues(string(msg.Kind), "failed").Inc()
		q.log.Error("mail_send_failed",
			slog.String("kind", string(msg.Kind)),
			slog.String("to", redact.Email(msg.To)),
			slog.String("err", err.Error()),
		)
		return
	}

	mailJobs.WithLabelValues(string(msg.Kind), "sent").Inc()
	q.log.Debug("mail_sent",
		slog.String("kind", string(msg.Kind)),
		slog.String("to", redact.Email(msg.To)),
	)
}
