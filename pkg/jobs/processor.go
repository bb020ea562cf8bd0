package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle position of a Processor.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateProcessing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outcome labels reported to the Observer.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeUnknown = "unknown_code"
)

// Record is a persisted mutation as seen by the processor.
type Record interface {
	MutationID() int64
	MutationCode() int
	Processed() bool
}

// Store is the mutation table backing one queue.
type Store[R Record] interface {
	Count(ctx context.Context) (int64, error)
	LatestID(ctx context.Context) (int64, error)
	PendingIDs(ctx context.Context, afterID int64) ([]int64, error)
	Get(ctx context.Context, id int64) (R, error)
	MarkProcessed(ctx context.Context, id int64, lastError *string) error
}

// Handler performs the state transition for one mutation kind.
type Handler[R Record] interface {
	Handle(ctx context.Context, record R) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[R Record] func(ctx context.Context, record R) error

// Handle implements Handler.
func (f HandlerFunc[R]) Handle(ctx context.Context, record R) error {
	return f(ctx, record)
}

// Table maps mutation codes to their handler. It is built once at startup.
type Table[R Record] map[int]Handler[R]

// Observer receives processor telemetry. MetricsService implements it.
type Observer interface {
	SetProcessorState(queue string, state State)
	ObserveMutation(queue string, code string, outcome string, duration time.Duration)
	IncPing(queue string)
	IncPingError(queue string)
}

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	PollInterval time.Duration
	Logger       *zap.Logger
	Observer     Observer
	// CodeName renders a code for logs and metric labels.
	CodeName func(code int) string
	Now      func() time.Time
}

// Processor drains one mutation queue strictly in primary key order.
type Processor[R Record] struct {
	name     string
	store    Store[R]
	waiter   Waiter
	handlers Table[R]

	poll     time.Duration
	logger   *zap.Logger
	observer Observer
	codeName func(int) string
	now      func() time.Time

	state     atomic.Int32
	watermark int64
	lastCount int64

	mu      sync.Mutex
	running bool
}

// NewProcessor builds a processor for the given queue.
func NewProcessor[R Record](name string, store Store[R], waiter Waiter, handlers Table[R], cfg ProcessorConfig) *Processor[R] {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CodeName == nil {
		cfg.CodeName = func(code int) string { return fmt.Sprintf("%d", code) }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if waiter == nil {
		waiter = NewLocalSignal()
	}

	p := &Processor[R]{
		name:      name,
		store:     store,
		waiter:    waiter,
		handlers:  handlers,
		poll:      cfg.PollInterval,
		logger:    cfg.Logger,
		observer:  cfg.Observer,
		codeName:  cfg.CodeName,
		now:       cfg.Now,
		lastCount: -1,
	}
	p.state.Store(int32(StateStopped))
	return p
}

// State reports the current lifecycle state.
func (p *Processor[R]) State() State {
	return State(p.state.Load())
}

// Watermark returns the highest primary key considered during this run.
func (p *Processor[R]) Watermark() int64 {
	return atomic.LoadInt64(&p.watermark)
}

// Run processes mutations until stopAt (minus a one second tail) or until ctx is cancelled.
// It returns an error when the store fails or a second Run is attempted. A failing
// waiter only costs latency: the processor sleeps out the poll interval and polls.
func (p *Processor[R]) Run(ctx context.Context, stopAt time.Time) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("processor %s already running", p.name)
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.setState(StateStopped)
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.setState(StateIdle)
	p.logger.Sugar().Infow("processor started", "queue", p.name, "stop_at", stopAt)

	pinged := true
	for {
		remaining := stopAt.Sub(p.now())
		if remaining <= time.Second || ctx.Err() != nil {
			break
		}

		count, err := p.store.Count(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("count %s mutations: %w", p.name, err)
		}
		if pinged || count != p.lastCount {
			p.lastCount = count
			if err := p.drain(ctx, stopAt); err != nil {
				return err
			}
		}

		wait := p.poll
		if remaining = stopAt.Sub(p.now()); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			break
		}
		pinged, err = p.waiter.WaitForPing(ctx, wait)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Warn("ping wait failed, polling instead", zap.String("queue", p.name), zap.Error(err))
			if p.observer != nil {
				p.observer.IncPingError(p.name)
			}
			if !p.sleep(ctx, wait) {
				break
			}
			pinged = false
			continue
		}
		if pinged && p.observer != nil {
			p.observer.IncPing(p.name)
		}
	}

	p.logger.Sugar().Infow("processor stopped", "queue", p.name, "watermark", p.Watermark())
	return nil
}

// sleep waits d unless ctx ends first.
func (p *Processor[R]) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *Processor[R]) drain(ctx context.Context, stopAt time.Time) error {
	p.setState(StateFetching)
	defer p.setState(StateIdle)

	latest, err := p.store.LatestID(ctx)
	if err != nil {
		return fmt.Errorf("latest %s mutation: %w", p.name, err)
	}
	ids, err := p.store.PendingIDs(ctx, p.Watermark())
	if err != nil {
		return fmt.Errorf("pending %s mutations: %w", p.name, err)
	}
	// The watermark jumps to the newest id before the batch runs. A lower id whose
	// insert commits after PendingIDs stays below it until the next run.
	if latest > p.Watermark() {
		atomic.StoreInt64(&p.watermark, latest)
	}

	for _, id := range ids {
		if ctx.Err() != nil || !p.now().Before(stopAt) {
			return nil
		}
		if err := p.processOne(ctx, id); err != nil {
			return err
		}
		if id > p.Watermark() {
			atomic.StoreInt64(&p.watermark, id)
		}
	}
	return nil
}

func (p *Processor[R]) processOne(ctx context.Context, id int64) error {
	// handlers always run to completion once started
	ctx = context.WithoutCancel(ctx)

	record, err := p.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get %s mutation %d: %w", p.name, id, err)
	}
	if record.Processed() {
		return nil
	}

	p.setState(StateProcessing)
	start := p.now()
	code := record.MutationCode()
	codeName := p.codeName(code)

	var lastError *string
	outcome := OutcomeOK

	handler, ok := p.handlers[code]
	if !ok {
		msg := fmt.Sprintf("unknown mutation code %d", code)
		lastError = &msg
		outcome = OutcomeUnknown
		p.logger.Sugar().Warnw("unknown mutation code", "queue", p.name, "mutation_id", id, "code", code)
	} else if herr := p.invoke(ctx, handler, record); herr != nil {
		msg := herr.Error()
		lastError = &msg
		outcome = OutcomeError
		p.logger.Sugar().Errorw("mutation failed", "queue", p.name, "mutation_id", id, "code", codeName, "error", herr)
	}

	if err := p.store.MarkProcessed(ctx, id, lastError); err != nil {
		return fmt.Errorf("mark %s mutation %d processed: %w", p.name, id, err)
	}

	duration := p.now().Sub(start)
	if p.observer != nil {
		p.observer.ObserveMutation(p.name, codeName, outcome, duration)
	}
	p.logger.Sugar().Infow("mutation processed", "queue", p.name, "mutation_id", id, "code", codeName, "outcome", outcome, "duration", duration)
	return nil
}

func (p *Processor[R]) invoke(ctx context.Context, handler Handler[R], record R) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler.Handle(ctx, record)
}

func (p *Processor[R]) setState(state State) {
	p.state.Store(int32(state))
	if p.observer != nil {
		p.observer.SetProcessorState(p.name, state)
	}
}
