package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"instructor-core/internal/domain"
	"instructor-core/internal/identity"
)

const (
	SourcePoll = "poll"
	SourcePush = "push"
)

// VerifiedEvent se emite una sola vez por observacion.
type VerifiedEvent struct {
	SubjectID  string    `json:"subject_id"`
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
}

type verificationStateReader interface {
	GetVerificationState(ctx context.Context, subjectID string) (bool, error)
}

// VerificationDetector corre en paralelo un sondeo periodico y una suscripcion push.
// La primera observacion verificada gana y detiene a la otra estrategia.
type VerificationDetector struct {
	logger     *zap.Logger
	states     verificationStateReader
	subscriber identity.StateSubscriber
	interval   time.Duration
	maxBackoff time.Duration
}

func NewVerificationDetector(logger *zap.Logger, states verificationStateReader, subscriber identity.StateSubscriber, interval, maxBackoff time.Duration) *VerificationDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if maxBackoff < interval {
		maxBackoff = interval
	}
	return &VerificationDetector{
		logger:     logger,
		states:     states,
		subscriber: subscriber,
		interval:   interval,
		maxBackoff: maxBackoff,
	}
}

// VerificationWatch es una observacion en curso. No tiene plazo: termina al
// verificarse la identidad, al cancelar el contexto o al llamar Stop.
type VerificationWatch struct {
	subjectID string
	events    chan VerifiedEvent
	cancel    context.CancelFunc
	done      chan struct{}

	mu    sync.Mutex
	fired bool
}

// Events entrega a lo sumo un evento y se cierra cuando ambas estrategias terminaron.
func (w *VerificationWatch) Events() <-chan VerifiedEvent {
	return w.events
}

// Done se cierra cuando ambas estrategias terminaron.
func (w *VerificationWatch) Done() <-chan struct{} {
	return w.done
}

// Stop detiene la observacion sin emitir evento y espera a que termine.
func (w *VerificationWatch) Stop() {
	w.cancel()
	<-w.done
}

func (w *VerificationWatch) resolve(source string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
	}
	w.fired = true
	w.events <- VerifiedEvent{SubjectID: w.subjectID, Source: source, ObservedAt: time.Now().UTC()}
	w.cancel()
	return true
}

func (w *VerificationWatch) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	// fired queda en true para que ninguna observacion tardia escriba en el canal cerrado.
	w.fired = true
	close(w.done)
	close(w.events)
}

func (d *VerificationDetector) Watch(ctx context.Context, subjectID string) (*VerificationWatch, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, errors.New("subject id is required")
	}
	if d.states == nil {
		return nil, errors.New("verification detector not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &VerificationWatch{
		subjectID: subjectID,
		events:    make(chan VerifiedEvent, 1),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	var wg sync.WaitGroup
	if d.subscriber != nil {
		unsubscribe, err := d.subscriber.SubscribeAuthState(ctx, subjectID, func(state domain.ExternalIdentity) {
			if state.Verified && d.record(w, SourcePush) {
				d.logger.Info("verification observed", zap.String("subject_id", subjectID), zap.String("source", SourcePush))
			}
		})
		if err != nil {
			d.logger.Warn("auth state subscription failed, polling only", zap.String("subject_id", subjectID), zap.Error(err))
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-ctx.Done()
				unsubscribe()
			}()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.poll(ctx, w)
	}()

	go func() {
		wg.Wait()
		w.finish()
	}()
	return w, nil
}

func (d *VerificationDetector) record(w *VerificationWatch, source string) bool {
	if !w.resolve(source) {
		return false
	}
	verificationEvents.WithLabelValues(source).Inc()
	return true
}

func (d *VerificationDetector) poll(ctx context.Context, w *VerificationWatch) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		verified, err := d.states.GetVerificationState(ctx, w.subjectID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			verificationPollErrors.Inc()
			delay := d.backoff(failures)
			d.logger.Warn("verification poll failed",
				zap.String("subject_id", w.subjectID),
				zap.Int("failures", failures),
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)
			timer.Reset(delay)
			continue
		}
		failures = 0
		if verified {
			if d.record(w, SourcePoll) {
				d.logger.Info("verification observed", zap.String("subject_id", w.subjectID), zap.String("source", SourcePoll))
			}
			return
		}
		timer.Reset(d.interval)
	}
}

func (d *VerificationDetector) backoff(failures int) time.Duration {
	delay := d.interval
	for i := 0; i < failures && delay < d.maxBackoff; i++ {
		delay *= 2
	}
	if delay > d.maxBackoff {
		delay = d.maxBackoff
	}
	return delay
}
