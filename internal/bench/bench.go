// Package bench drives a perfee engine with concurrent synthetic work.
package bench

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/perfee/pkg/logging"
	"github.com/psantana5/perfee/pkg/perfee"
)

// Options describes a bench run
type Options struct {
	Workers int `json:"workers" yaml:"workers"`
	// Ops is the number of measured operations per worker
	Ops    int `json:"ops" yaml:"ops"`
	Groups int `json:"groups" yaml:"groups"`
	// SingleRatio is the share of operations measured as single entries
	SingleRatio float64 `json:"single_ratio" yaml:"single_ratio"`
	// CancelRatio is the share of operations discarded instead of closed
	CancelRatio float64       `json:"cancel_ratio" yaml:"cancel_ratio"`
	MinSleep    time.Duration `json:"min_sleep" yaml:"min_sleep"`
	MaxSleep    time.Duration `json:"max_sleep" yaml:"max_sleep"`
	Seed        uint64        `json:"seed" yaml:"seed"`
}

// DefaultOptions returns a small run
func DefaultOptions() Options {
	return Options{
		Workers:     4,
		Ops:         100,
		Groups:      3,
		SingleRatio: 0.1,
		MinSleep:    100 * time.Microsecond,
		MaxSleep:    2 * time.Millisecond,
		Seed:        1,
	}
}

// Validate checks the options
func (o Options) Validate() error {
	var errs []error
	if o.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if o.Ops < 0 {
		errs = append(errs, errors.New("ops must not be negative"))
	}
	if o.Groups <= 0 && o.SingleRatio < 1 {
		errs = append(errs, errors.New("groups must be positive unless every operation is single"))
	}
	if o.SingleRatio < 0 || o.SingleRatio > 1 {
		errs = append(errs, fmt.Errorf("single ratio %v out of [0,1]", o.SingleRatio))
	}
	if o.CancelRatio < 0 || o.CancelRatio > 1 {
		errs = append(errs, fmt.Errorf("cancel ratio %v out of [0,1]", o.CancelRatio))
	}
	if o.MinSleep < 0 || o.MaxSleep < o.MinSleep {
		errs = append(errs, fmt.Errorf("invalid sleep range [%s, %s]", o.MinSleep, o.MaxSleep))
	}
	return errors.Join(errs...)
}

// Result is the outcome of a run
type Result struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	StartTime time.Time     `json:"start_time" yaml:"start_time"`
	EndTime   time.Time     `json:"end_time" yaml:"end_time"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Closed    int64         `json:"closed" yaml:"closed"`
	Cancelled int64         `json:"cancelled" yaml:"cancelled"`
	Singles   int64         `json:"singles" yaml:"singles"`
	// Interrupted is set when the context ended before every worker finished
	Interrupted bool `json:"interrupted" yaml:"interrupted"`
}

// Total returns the number of operations performed
func (r *Result) Total() int64 {
	return r.Closed + r.Cancelled
}

// OpsPerSecond returns the throughput of the run
func (r *Result) OpsPerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Total()) / r.Duration.Seconds()
}

// LogSummary writes a one-line summary to log
func (r *Result) LogSummary(log *logging.Logger) {
	log.Info(fmt.Sprintf("RUN %s | ops=%d | closed=%d | cancelled=%d | %.0f ops/s | took=%s",
		r.RunID, r.Total(), r.Closed, r.Cancelled, r.OpsPerSecond(), r.Duration))
}

// GroupName returns the name of group i
func GroupName(i int) string {
	return fmt.Sprintf("group-%02d", i)
}

// Driver runs operations against an engine
type Driver struct {
	engine *perfee.Engine
	opts   Options
	log    *logging.Logger
	sleep  func(ctx context.Context, d time.Duration)
}

// NewDriver validates opts and creates a driver
func NewDriver(e *perfee.Engine, opts Options, log *logging.Logger) (*Driver, error) {
	if e == nil {
		return nil, errors.New("nil engine")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bench options: %w", err)
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Driver{engine: e, opts: opts, log: log, sleep: sleepCtx}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type counters struct {
	closed    atomic.Int64
	cancelled atomic.Int64
	singles   atomic.Int64
}

// Run starts the workers and waits for them. Workers stop early when ctx
// ends; operations in flight are still closed or cancelled.
func (d *Driver) Run(ctx context.Context) *Result {
	res := &Result{RunID: uuid.NewString(), StartTime: time.Now()}
	d.log.Info("bench run started", map[string]interface{}{
		"run_id":  res.RunID,
		"workers": d.opts.Workers,
		"ops":     d.opts.Ops,
	})

	var c counters
	var wg sync.WaitGroup
	for w := 0; w < d.opts.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			d.work(ctx, w, &c)
		}(w)
	}
	wg.Wait()

	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	res.Closed = c.closed.Load()
	res.Cancelled = c.cancelled.Load()
	res.Singles = c.singles.Load()
	res.Interrupted = ctx.Err() != nil && res.Total() < int64(d.opts.Workers*d.opts.Ops)
	return res
}

func (d *Driver) work(ctx context.Context, worker int, c *counters) {
	rng := rand.New(rand.NewPCG(d.opts.Seed, uint64(worker)))

	for i := 0; i < d.opts.Ops; i++ {
		if ctx.Err() != nil {
			return
		}

		var scope *perfee.Scope
		if rng.Float64() < d.opts.SingleRatio {
			scope = d.engine.Start(fmt.Sprintf("worker-%d op-%d", worker, i))
			c.singles.Add(1)
		} else {
			scope = d.engine.StartGroup(GroupName(rng.IntN(d.opts.Groups)))
		}

		d.sleep(ctx, d.pause(rng))

		if rng.Float64() < d.opts.CancelRatio {
			scope.Discard()
			c.cancelled.Add(1)
			continue
		}
		scope.End()
		c.closed.Add(1)
	}
}

func (d *Driver) pause(rng *rand.Rand) time.Duration {
	span := d.opts.MaxSleep - d.opts.MinSleep
	if span <= 0 {
		return d.opts.MinSleep
	}
	return d.opts.MinSleep + time.Duration(rng.Int64N(int64(span)))
}
