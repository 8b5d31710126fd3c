package spinner

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nantokaworks/spin-overlay/internal/shared/logger"
	"go.uber.org/zap"
)

// State describes the wheel's current phase.
type State int

const (
	StateIdle State = iota
	StateSpinning
	StateLanding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpinning:
		return "spinning"
	case StateLanding:
		return "landing"
	default:
		return "unknown"
	}
}

// Coordinator is the server-side decision source for a spin. The HTTP client
// in this package implements it; tests substitute fakes.
type Coordinator interface {
	SubscriberCount(ctx context.Context) (int, error)
	CreateSession(ctx context.Context, items []string) (string, error)
	AwaitResolution(ctx context.Context, sessionID string) (index int, item string, err error)
}

var (
	ErrSpinInProgress = errors.New("spinner: spin already in progress")
	ErrTooFewItems    = errors.New("spinner: at least 2 items required")
)

// secureRandomInt returns a uniform integer in [0, max).
func secureRandomInt(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

// drawRandomInt is swapped in tests for deterministic draws.
var drawRandomInt = secureRandomInt

const (
	defaultRemoteWait      = 5 * time.Second
	defaultMinTurns        = 5
	defaultLandingDuration = 4 * time.Second
	defaultSpinVelocity    = 540.0 // degrees per second

	// Random pointer offset inside the winning segment, as a fraction of
	// the half segment width. Bounded so the pointer never reads as
	// sitting on a boundary.
	maxOffsetFraction = 0.35

	offsetResolution = 10000
)

// Config tunes the spin animation and the remote-decision window.
// Zero values fall back to defaults.
type Config struct {
	RemoteWait      time.Duration
	MinTurns        int
	LandingDuration time.Duration
	SpinVelocity    float64
}

func (c *Config) applyDefaults() {
	if c.RemoteWait <= 0 {
		c.RemoteWait = defaultRemoteWait
	}
	if c.MinTurns <= 0 {
		c.MinTurns = defaultMinTurns
	}
	if c.LandingDuration <= 0 {
		c.LandingDuration = defaultLandingDuration
	}
	if c.SpinVelocity <= 0 {
		c.SpinVelocity = defaultSpinVelocity
	}
}

// Result is the outcome of a completed spin.
type Result struct {
	Index  int
	Item   string
	Remote bool
}

// Orchestrator drives one wheel: constant-velocity spin while the decision is
// pending, then a smooth landing onto the winning segment. Angle is a pure
// read so a render loop can sample it every frame without contention on the
// decision path.
type Orchestrator struct {
	coord Coordinator
	clock clockwork.Clock
	cfg   Config

	mu        sync.Mutex
	state     State
	items     []string
	restAngle float64

	spinStart time.Time
	velocity  float64

	landStart time.Time
	landDur   time.Duration
	theta0    float64
	omega0    float64
	target    float64

	result    *Result
	cancelRun context.CancelFunc
}

func New(coord Coordinator, cfg Config, opts ...Option) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		coord: coord,
		clock: clockwork.NewRealClock(),
		cfg:   cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type Option func(*Orchestrator)

func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// Spin starts a spin over a snapshot of items. It returns once the wheel is
// moving; resolution and landing happen in the background. Only one spin may
// be in flight at a time.
func (o *Orchestrator) Spin(ctx context.Context, items []string) error {
	if len(items) < 2 {
		return ErrTooFewItems
	}

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return ErrSpinInProgress
	}

	snapshot := make([]string, len(items))
	copy(snapshot, items)

	runCtx, cancel := context.WithCancel(ctx)
	o.state = StateSpinning
	o.items = snapshot
	o.spinStart = o.clock.Now()
	o.velocity = o.cfg.SpinVelocity
	o.result = nil
	o.cancelRun = cancel
	o.mu.Unlock()

	go o.resolve(runCtx, snapshot)
	return nil
}

// resolve obtains a winner (remote if anyone is subscribed and answers in
// time, local draw otherwise) and hands off to the landing phase.
func (o *Orchestrator) resolve(ctx context.Context, items []string) {
	index, remote := o.decide(ctx, items)
	if ctx.Err() != nil {
		return
	}
	o.beginLanding(ctx, index, remote)
}

func (o *Orchestrator) decide(ctx context.Context, items []string) (int, bool) {
	count, err := o.coord.SubscriberCount(ctx)
	if err != nil {
		logger.Warn("Subscriber count unavailable, drawing locally", zap.Error(err))
		return o.localDraw(len(items)), false
	}
	if count == 0 {
		logger.Debug("No subscribers, drawing locally")
		return o.localDraw(len(items)), false
	}

	sessionID, err := o.coord.CreateSession(ctx, items)
	if err != nil {
		logger.Warn("Session creation failed, drawing locally", zap.Error(err))
		return o.localDraw(len(items)), false
	}

	type resolution struct {
		index int
		err   error
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()

	resolved := make(chan resolution, 1)
	go func() {
		index, _, err := o.coord.AwaitResolution(waitCtx, sessionID)
		resolved <- resolution{index: index, err: err}
	}()

	select {
	case res := <-resolved:
		if res.err != nil {
			logger.Warn("Remote resolution failed, drawing locally",
				zap.String("session_id", sessionID),
				zap.Error(res.err))
			return o.localDraw(len(items)), false
		}
		if res.index < 0 || res.index >= len(items) {
			logger.Warn("Remote resolution out of range, drawing locally",
				zap.String("session_id", sessionID),
				zap.Int("index", res.index))
			return o.localDraw(len(items)), false
		}
		logger.Info("Remote choice received",
			zap.String("session_id", sessionID),
			zap.Int("index", res.index))
		return res.index, true
	case <-o.clock.After(o.cfg.RemoteWait):
		logger.Info("Remote wait elapsed, drawing locally",
			zap.String("session_id", sessionID))
		return o.localDraw(len(items)), false
	case <-ctx.Done():
		return 0, false
	}
}

func (o *Orchestrator) localDraw(n int) int {
	index, err := drawRandomInt(n)
	if err != nil {
		logger.Error("Secure random draw failed", zap.Error(err))
		return 0
	}
	return index
}

// beginLanding freezes the current angle and velocity and computes a forward
// target that places the center of the winning segment under the pointer,
// plus a bounded random offset so repeated wins don't look scripted.
func (o *Orchestrator) beginLanding(ctx context.Context, index int, remote bool) {
	o.mu.Lock()

	if o.state != StateSpinning {
		o.mu.Unlock()
		return
	}

	now := o.clock.Now()
	elapsed := now.Sub(o.spinStart).Seconds()
	theta0 := o.restAngle + o.velocity*elapsed
	omega0 := o.velocity

	seg := 360.0 / float64(len(o.items))
	offset := o.randomOffset() * seg / 2
	targetBase := -(float64(index)*seg + seg/2) + offset

	// Land at least MinTurns full revolutions ahead of where we are now.
	minTarget := theta0 + float64(o.cfg.MinTurns)*360
	k := math.Ceil((minTarget - targetBase) / 360)
	target := targetBase + k*360

	// Monotonicity of the cubic ease needs enough travel for the entry
	// velocity; add whole turns until the sufficient condition holds.
	dur := o.cfg.LandingDuration.Seconds()
	for target-theta0 < omega0*dur/3 {
		target += 360
	}

	o.state = StateLanding
	o.landStart = now
	o.landDur = o.cfg.LandingDuration
	o.theta0 = theta0
	o.omega0 = omega0
	o.target = target
	o.result = &Result{Index: index, Item: o.items[index], Remote: remote}
	o.mu.Unlock()

	select {
	case <-o.clock.After(o.cfg.LandingDuration):
		o.finishLanding()
	case <-ctx.Done():
	}
}

func (o *Orchestrator) finishLanding() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateLanding {
		return
	}
	o.state = StateIdle
	o.restAngle = math.Mod(o.target, 360)
	if o.restAngle < 0 {
		o.restAngle += 360
	}
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}
}

// randomOffset returns a value in [-maxOffsetFraction, +maxOffsetFraction].
func (o *Orchestrator) randomOffset() float64 {
	n, err := drawRandomInt(2*offsetResolution + 1)
	if err != nil {
		return 0
	}
	return float64(n-offsetResolution) / offsetResolution * maxOffsetFraction
}

// Angle reports the wheel rotation in degrees at the given instant. Pure
// read; safe to call from a render loop.
func (o *Orchestrator) Angle(now time.Time) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateSpinning:
		return o.restAngle + o.velocity*now.Sub(o.spinStart).Seconds()
	case StateLanding:
		t := now.Sub(o.landStart).Seconds()
		d := o.landDur.Seconds()
		if t <= 0 {
			return o.theta0
		}
		if t >= d {
			return o.target
		}
		return hermite(o.theta0, o.target, o.omega0*d, t/d)
	default:
		return o.restAngle
	}
}

// hermite evaluates a cubic Hermite curve from theta0 to theta1 over s in
// [0,1], entering with tangent m0 and leaving with zero tangent.
func hermite(theta0, theta1, m0, s float64) float64 {
	s2 := s * s
	s3 := s2 * s
	h00 := 2*s3 - 3*s2 + 1
	h10 := s3 - 2*s2 + s
	h01 := -2*s3 + 3*s2
	return h00*theta0 + h10*m0 + h01*theta1
}

// CurrentState reports the wheel's phase.
func (o *Orchestrator) CurrentState() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Winner returns the resolved outcome once the landing phase has begun.
func (o *Orchestrator) Winner() (Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		return Result{}, false
	}
	return *o.result, true
}

// Items returns the snapshot the current or last spin ran over.
func (o *Orchestrator) Items() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.items))
	copy(out, o.items)
	return out
}

// Cancel aborts an in-flight spin. The wheel freezes where it is.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateIdle {
		return
	}
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}

	now := o.clock.Now()
	switch o.state {
	case StateSpinning:
		o.restAngle = math.Mod(o.restAngle+o.velocity*now.Sub(o.spinStart).Seconds(), 360)
	case StateLanding:
		t := now.Sub(o.landStart).Seconds()
		d := o.landDur.Seconds()
		var angle float64
		if t >= d {
			angle = o.target
		} else if t <= 0 {
			angle = o.theta0
		} else {
			angle = hermite(o.theta0, o.target, o.omega0*d, t/d)
		}
		o.restAngle = math.Mod(angle, 360)
	}
	if o.restAngle < 0 {
		o.restAngle += 360
	}
	o.state = StateIdle
	o.result = nil
}
