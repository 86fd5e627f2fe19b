// internal/websocket/session.go
package websocket

import (
	"context"
	"errors"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"aquacare-relay/internal/config"
	"aquacare-relay/internal/data"
	"aquacare-relay/internal/logger"
	"aquacare-relay/internal/metrics"
)

const (
	writeWait      = 10 * time.Second // Time allowed to write a message to the peer.
	welcomeMessage = "You're now connected to the WebSocket server"
)

// ErrProcessing is reported to the device when a message cycle fails unexpectedly.
var ErrProcessing = errors.New("error processing data")

// SessionState is the lifecycle position of a Session.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SensorWriter persists the latest reading.
type SensorWriter interface {
	Update(ctx context.Context, fields map[string]interface{}) error
}

// Evaluator turns a reading into zero or more alerts. It must not fail.
type Evaluator interface {
	Check(ctx context.Context, reading data.SensorReading) []data.Alert
}

// Notifier forwards an alert to operators without blocking the caller.
type Notifier interface {
	Notify(alert data.Alert)
}

// Pipeline holds the collaborators every session shares.
type Pipeline struct {
	Sensors      SensorWriter
	Detector     Evaluator
	Notifier     Notifier
	EchoMode     string
	StoreTimeout time.Duration
}

// NewPipeline builds a Pipeline from session settings.
func NewPipeline(sensors SensorWriter, detector Evaluator, notifier Notifier, cfg config.SessionConfig) *Pipeline {
	return &Pipeline{
		Sensors:      sensors,
		Detector:     detector,
		Notifier:     notifier,
		EchoMode:     cfg.EchoMode,
		StoreTimeout: cfg.StoreTimeout,
	}
}

// Session owns one device connection. Messages are handled strictly in order:
// one frame is fully processed before the next is read.
type Session struct {
	ID           string
	hub          *Hub
	conn         *websocket.Conn
	pipeline     *Pipeline
	pingInterval time.Duration
	state        atomic.Int32
	log          zerolog.Logger
}

func NewSession(hub *Hub, conn *websocket.Conn, pipeline *Pipeline, pingInterval time.Duration) *Session {
	id := uuid.New().String()
	return &Session{
		ID:           id,
		hub:          hub,
		conn:         conn,
		pipeline:     pipeline,
		pingInterval: pingInterval,
		log: logger.WithComponent("session").With().
			Str("session_id", id).
			Str("remote_addr", conn.RemoteAddr().String()).
			Logger(),
	}
}

func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// Run greets the device and then processes frames until the peer disconnects,
// the transport fails or the hub shuts down. The connection is always closed on return.
func (s *Session) Run(ctx context.Context) {
	registered := s.hub.Register(s)
	defer func() {
		s.state.Store(int32(StateClosed))
		if registered {
			s.hub.Unregister(s)
		}
		s.conn.Close()
		s.log.Info().Msg("a client disconnected")
	}()
	if !registered {
		return
	}

	s.state.Store(int32(StateOpen))
	s.log.Info().Msg("session open")

	if err := s.writeJSON(map[string]string{"message": welcomeMessage}); err != nil {
		s.log.Warn().Err(err).Msg("failed to send welcome")
		return
	}

	if s.pingInterval > 0 {
		stop := make(chan struct{})
		defer close(stop)
		go s.keepalive(stop)
	}

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn().Err(err).Msg("connection error")
			} else {
				s.log.Debug().Err(err).Msg("connection closed")
			}
			return
		}

		s.log.Debug().Bytes("payload", message).Msg("received message")
		if err := s.handleMessage(ctx, message); err != nil {
			s.log.Warn().Err(err).Msg("write failed, ending session")
			return
		}
	}
}

// handleMessage runs one message cycle. It only returns transport errors;
// everything else is reported to the device or logged.
func (s *Session) handleMessage(ctx context.Context, raw []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("panic while handling message")
			metrics.PanicsRecovered.WithLabelValues("session").Inc()
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			err = s.writeError(ErrProcessing)
		}
	}()

	reading, verr := data.Parse(raw)
	if verr != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		metrics.ValidationErrors.WithLabelValues(data.ErrorType(verr)).Inc()
		s.log.Info().Err(verr).Msg("rejected payload")
		return s.writeError(verr)
	}
	metrics.MessagesTotal.WithLabelValues("accepted").Inc()

	s.persist(ctx, reading)

	alerts := s.pipeline.Detector.Check(ctx, reading)
	for _, alert := range alerts {
		s.pipeline.Notifier.Notify(alert)
	}

	if err := s.echo(reading); err != nil {
		return err
	}
	for _, alert := range alerts {
		if err := s.writeJSON(map[string]string{alert.Metric.AlertKey(): alert.Message}); err != nil {
			return err
		}
	}
	return nil
}

// persist writes the reading as one batch. Failures are logged, not reported.
func (s *Session) persist(ctx context.Context, reading data.SensorReading) {
	if s.pipeline.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.pipeline.StoreTimeout)
		defer cancel()
	}

	start := time.Now()
	err := s.pipeline.Sensors.Update(ctx, reading.Fields())
	metrics.StoreWriteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreWriteFailures.Inc()
		s.log.Error().Err(err).Msg("failed to update sensor store")
		return
	}
	s.log.Debug().Msg("sensor store updated")
}

func (s *Session) echo(reading data.SensorReading) error {
	if s.pipeline.EchoMode == config.EchoCombined {
		return s.writeJSON(reading)
	}
	for _, m := range data.Metrics {
		if err := s.writeJSON(map[string]float64{string(m): reading.Value(m)}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) writeError(err error) error {
	return s.writeJSON(map[string]string{"error": data.ClientMessage(err)})
}

func (s *Session) writeJSON(v interface{}) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// keepalive pings the peer. WriteControl may run concurrently with the session's writes.
func (s *Session) keepalive(stop <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// closeForShutdown tells the peer the server is going away and closes the
// connection, which unblocks the session's pending read.
func (s *Session) closeForShutdown() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.conn.Close()
}
