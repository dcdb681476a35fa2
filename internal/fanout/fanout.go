package fanout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"chat-sync/internal/db"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/ws"
)

const (
	clearNotificationsRouting = "notifications.clear"

	// DefaultAsyncBuffer bounds the relay and broker work queued behind live pushes.
	DefaultAsyncBuffer = 1024

	signalTimeout = 5 * time.Second
)

// ErrDurableUpdate is returned when a durable update is pushed without
// going through the bucket.
var ErrDurableUpdate = errors.New("durable update must be appended")

// Appender writes durable updates to a user's bucket.
type Appender interface {
	Append(ctx context.Context, q db.Queryer, userID int64, update models.Update) (models.UpdateEntry, error)
}

// SessionLookup lists a user's locally connected sessions.
type SessionLookup interface {
	SessionsFor(userID int64) []ws.Session
}

// Relay forwards an encoded push to other nodes.
type Relay interface {
	Publish(userID int64, frame []byte, skipSession string) error
}

// ClearSignal is published whenever a user's read position advances so the
// push service can drop notifications up to MaxID.
type ClearSignal struct {
	UserID int64       `json:"user_id"`
	Peer   models.Peer `json:"peer"`
	MaxID  int64       `json:"max_id"`
}

// asyncJob is the part of a push that talks to other processes.
type asyncJob struct {
	userID int64
	frame  []byte
	skip   string
	clear  *ClearSignal
}

// Fanout persists updates to buckets and pushes them to live sessions.
// Local delivery happens on the caller's goroutine; relay publishes and clear
// signals go through a bounded queue drained by one worker.
type Fanout struct {
	bucket   Appender
	sessions SessionLookup
	events   rabbitmq.Publisher
	relay    Relay
	logger   *zap.Logger

	jobs    chan asyncJob
	dropped atomic.Int64
	mu      sync.RWMutex
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(bucket Appender, sessions SessionLookup, events rabbitmq.Publisher, logger *zap.Logger) *Fanout {
	return NewWithBuffer(bucket, sessions, events, DefaultAsyncBuffer, logger)
}

// NewWithBuffer is New with an explicit async queue size.
func NewWithBuffer(bucket Appender, sessions SessionLookup, events rabbitmq.Publisher, buffer int, logger *zap.Logger) *Fanout {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &Fanout{
		bucket:   bucket,
		sessions: sessions,
		events:   events,
		logger:   logger.Named("fanout"),
		jobs:     make(chan asyncJob, buffer),
		ctx:      ctx,
		cancel:   cancel,
	}
	f.wg.Add(1)
	go f.worker()
	return f
}

// Close stops accepting async work and waits for the queue to drain. Jobs
// still running when ctx expires are cancelled.
func (f *Fanout) Close(ctx context.Context) {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.jobs)
	}
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		f.cancel()
		<-done
	}
	f.cancel()
}

// SetRelay attaches the cross-node relay. It must be called before serving.
func (f *Fanout) SetRelay(relay Relay) {
	f.relay = relay
}

// Begin starts collecting updates for one operation. skipSession is the
// session that caused the change and gets no live copy.
func (f *Fanout) Begin(skipSession string) *Outbox {
	return &Outbox{fanout: f, skip: skipSession}
}

// Publish appends a durable update using q and pushes it right away. Use an
// Outbox instead when q is a transaction that has not committed yet.
func (f *Fanout) Publish(ctx context.Context, q db.Queryer, userID int64, update models.Update, skipSession string) error {
	out := f.Begin(skipSession)
	if err := out.Append(ctx, q, userID, update); err != nil {
		return err
	}
	out.Flush(ctx)
	return nil
}

// PublishTransient pushes an update that is never written to the bucket.
func (f *Fanout) PublishTransient(ctx context.Context, userID int64, update models.Update, skipSession string) error {
	if models.IsDurable(update) {
		return ErrDurableUpdate
	}
	f.push(ctx, models.UpdateEntry{UserID: userID, Update: update}, skipSession)
	return nil
}

// DeliverLocal writes an encoded frame to the user's sessions on this node and
// returns how many accepted it.
func (f *Fanout) DeliverLocal(userID int64, frame []byte, skipSession string) int {
	delivered := 0
	for _, session := range f.sessions.SessionsFor(userID) {
		if skipSession != "" && session.ID() == skipSession {
			observability.IncLivePush("skipped")
			continue
		}
		if err := session.Send(frame); err != nil {
			observability.IncLivePush("dropped")
			f.logger.Debug("live push dropped",
				zap.Int64("user_id", userID),
				zap.String("session_id", session.ID()),
				zap.Error(err),
			)
			continue
		}
		observability.IncLivePush("sent")
		delivered++
	}
	return delivered
}

func (f *Fanout) push(ctx context.Context, entry models.UpdateEntry, skipSession string) {
	frame, err := ws.EncodeUpdateFrame(entry.Seq, entry.Update, entry.CreatedAt)
	if err != nil {
		f.logger.Error("encode update frame failed", zap.String("kind", string(entry.Update.Kind())), zap.Error(err))
		return
	}

	f.DeliverLocal(entry.UserID, frame, skipSession)

	job := asyncJob{userID: entry.UserID, frame: frame, skip: skipSession}
	if read, ok := entry.Update.(models.ReadMaxAdvanced); ok && f.events != nil {
		job.clear = &ClearSignal{UserID: entry.UserID, Peer: read.Peer, MaxID: read.ReadMaxID}
	}
	if f.relay == nil && job.clear == nil {
		return
	}
	f.enqueue(job)
}

// Dropped reports how many async jobs were discarded.
func (f *Fanout) Dropped() int64 {
	return f.dropped.Load()
}

// enqueue never blocks; a full or closed queue drops the job.
func (f *Fanout) enqueue(job asyncJob) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		f.drop()
		return
	}
	select {
	case f.jobs <- job:
	default:
		f.drop()
		f.logger.Warn("async queue full, dropping relay and clear signal",
			zap.Int64("user_id", job.userID),
			zap.Int("buffer", cap(f.jobs)),
		)
	}
}

func (f *Fanout) drop() {
	f.dropped.Add(1)
	observability.IncAsyncDropped()
}

func (f *Fanout) worker() {
	defer f.wg.Done()
	for job := range f.jobs {
		f.runJob(job)
	}
}

func (f *Fanout) runJob(job asyncJob) {
	if f.relay != nil {
		if err := f.relay.Publish(job.userID, job.frame, job.skip); err != nil {
			observability.IncRelayError()
			f.logger.Warn("relay publish failed", zap.Int64("user_id", job.userID), zap.Error(err))
		}
	}
	if job.clear != nil {
		f.signalClear(*job.clear)
	}
}

func (f *Fanout) signalClear(signal ClearSignal) {
	ctx, cancel := context.WithTimeout(f.ctx, signalTimeout)
	defer cancel()
	if err := f.events.Publish(ctx, clearNotificationsRouting, signal, nil); err != nil {
		observability.IncAMQPPublishError()
		f.logger.Warn("clear notifications signal failed", zap.Int64("user_id", signal.UserID), zap.Error(err))
	}
}
