// dispatcher.go — асинхронная доставка уведомлений пользователям.
//
// Enqueue никогда не блокирует вызывающего: уведомление кладётся в
// буферизованную очередь неблокирующей отправкой; при переполненной очереди
// уведомление отбрасывается (warning + метрика). Воркеры доставляют
// уведомления в Sink с таймаутом на одну доставку, без повторов.
// Stop дожидается доставки всего, что уже стоит в очереди.
//
// Prometheus-метрики:
//   - im_notifications_total{result} — enqueued, dropped, delivered, failed
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "im_notifications_total",
	Help: "Уведомления по результату: enqueued, dropped, delivered, failed",
}, []string{"result"})

// Sink — получатель уведомлений.
type Sink interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// Dispatcher — очередь уведомлений с пулом воркеров.
type Dispatcher struct {
	sink    Sink
	queue   chan model.Notification
	workers int
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewDispatcher создаёт диспетчер уведомлений.
func NewDispatcher(sink Sink, queueSize, workers int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan model.Notification, queueSize),
		workers: workers,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "notify_dispatcher")),
	}
}

// Start запускает воркеры доставки.
// Отмена ctx не прерывает доставку: очередь разбирается до Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	base := context.WithoutCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(base, i)
	}

	d.logger.Info("Доставка уведомлений запущена",
		slog.Int("workers", d.workers),
		slog.Int("queue_size", cap(d.queue)),
	)
}

// Enqueue ставит уведомление в очередь. Не блокирует.
// Возвращает false, если уведомление отброшено.
func (d *Dispatcher) Enqueue(userID, message string, severity model.Severity) bool {
	n := model.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now().UTC(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		notificationsTotal.WithLabelValues("dropped").Inc()
		d.logger.Warn("Уведомление отброшено: доставка остановлена",
			slog.String("user_id", userID),
		)
		return false
	}

	select {
	case d.queue <- n:
		notificationsTotal.WithLabelValues("enqueued").Inc()
		return true
	default:
		notificationsTotal.WithLabelValues("dropped").Inc()
		d.logger.Warn("Уведомление отброшено: очередь переполнена",
			slog.String("user_id", userID),
			slog.String("severity", string(severity)),
			slog.Int("queue_size", cap(d.queue)),
		)
		return false
	}
}

// Stop закрывает очередь и ждёт, пока воркеры доставят оставшиеся уведомления.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	if !started {
		// Воркеры не запускались — разбираем очередь синхронно.
		d.wg.Add(1)
		d.worker(context.Background(), -1)
	}
	d.wg.Wait()
	d.logger.Info("Доставка уведомлений остановлена")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(ctx, n, id)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n model.Notification, workerID int) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sink.Deliver(ctx, n); err != nil {
		notificationsTotal.WithLabelValues("failed").Inc()
		d.logger.Error("Ошибка доставки уведомления",
			slog.String("notification_id", n.ID),
			slog.String("user_id", n.UserID),
			slog.Int("worker", workerID),
			slog.String("error", err.Error()),
		)
		return
	}

	notificationsTotal.WithLabelValues("delivered").Inc()
	d.logger.Debug("Уведомление доставлено",
		slog.String("notification_id", n.ID),
		slog.String("user_id", n.UserID),
		slog.String("severity", string(n.Severity)),
	)
}
