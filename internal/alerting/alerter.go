// internal/alerting/alerter.go
package alerting

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"aquacare-relay/internal/data"
	"aquacare-relay/internal/logger"
	"aquacare-relay/internal/metrics"
)

// Dispatcher delivers one push notification. topic is fixed per deployment.
type Dispatcher interface {
	Send(ctx context.Context, topic, title, body string) error
}

// Backend is a named Dispatcher; the name labels logs and metrics.
type Backend struct {
	Name       string
	Dispatcher Dispatcher
}

// Alerter fans alerts out to every configured backend in the background.
// Delivery is best-effort: failures are logged and never retried.
type Alerter struct {
	topic    string
	timeout  time.Duration
	backends []Backend
	wg       sync.WaitGroup
	log      zerolog.Logger
}

func NewAlerter(topic string, timeout time.Duration, backends ...Backend) *Alerter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Alerter{
		topic:    topic,
		timeout:  timeout,
		backends: backends,
		log:      logger.WithComponent("alerter"),
	}
}

// Notify hands alert to each backend without blocking the caller.
func (a *Alerter) Notify(alert data.Alert) {
	for _, b := range a.backends {
		a.wg.Add(1)
		go a.deliver(b, alert)
	}
}

func (a *Alerter) deliver(b Backend, alert data.Alert) {
	defer a.wg.Done()
	log := a.log.With().Str("backend", b.Name).Str("metric", string(alert.Metric)).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("dispatcher panic recovered")
			metrics.PanicsRecovered.WithLabelValues("dispatcher").Inc()
			metrics.DispatchTotal.WithLabelValues(b.Name, "failed").Inc()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := b.Dispatcher.Send(ctx, a.topic, alert.Title(), alert.Body()); err != nil {
		log.Error().Err(err).Msg("alert notification failed")
		metrics.DispatchTotal.WithLabelValues(b.Name, "failed").Inc()
		return
	}
	log.Debug().Msg("alert notification sent")
	metrics.DispatchTotal.WithLabelValues(b.Name, "success").Inc()
}

// Wait blocks until every notification started so far has finished.
func (a *Alerter) Wait() {
	a.wg.Wait()
}

// LogDispatcher writes notifications to the log. It is the default backend
// when no push service is configured.
type LogDispatcher struct {
	log zerolog.Logger
}

func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{log: logger.WithComponent("notifications")}
}

func (d *LogDispatcher) Send(_ context.Context, topic, title, body string) error {
	d.log.Warn().Str("topic", topic).Str("title", title).Msg(body)
	return nil
}

// notification is the JSON document published by the broker backends.
type notification struct {
	Topic  string    `json:"topic"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

func newNotification(topic, title, body string) notification {
	return notification{Topic: topic, Title: title, Body: body, SentAt: time.Now().UTC()}
}
