package sim

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"modsim/internal/config"
	"modsim/internal/dynamics"
	"modsim/internal/store"
)

// Point is one evolving value: a store slot plus its dynamics and tick
// period. Static points never become Points; they are written once at
// startup and left alone.
type Point struct {
	Table   store.Kind
	Address uint16
	Period  time.Duration
	Spec    *dynamics.Spec
}

// UpdateSink receives every committed tick update. Implementations must not
// block the tick loop for long; the recorder queues internally.
type UpdateSink interface {
	Record(at time.Time, table store.Kind, address uint16, value float64)
}

// Options tune the scheduler. Sink may be nil.
type Options struct {
	LogUpdates bool
	Sink       UpdateSink
}

// Scheduler drives one goroutine per evolving point on a fixed-rate
// schedule anchored to a single start instant shared by all points.
type Scheduler struct {
	store  *store.Store
	points []Point
	opts   Options
}

func New(st *store.Store, points []Point, opts Options) *Scheduler {
	return &Scheduler{store: st, points: points, opts: opts}
}

// Run starts every point goroutine and blocks until ctx is cancelled and
// all of them have drained. With no points it returns immediately.
func (s *Scheduler) Run(ctx context.Context) {
	start := time.Now()
	var wg sync.WaitGroup
	for _, p := range s.points {
		wg.Add(1)
		rng := rand.New(rand.NewSource(start.UnixNano() ^ int64(p.Address)<<16 ^ int64(p.Table)))
		go func(p Point, rng *rand.Rand) {
			defer wg.Done()
			s.runPoint(ctx, p, start, rng)
		}(p, rng)
	}
	wg.Wait()
}

func (s *Scheduler) runPoint(ctx context.Context, p Point, start time.Time, rng *rand.Rand) {
	next := start.Add(p.Period)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()
	warnedNaN := false
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-timer.C:
			s.tick(p, now.Sub(start).Seconds(), rng, &warnedNaN)
			next = next.Add(p.Period)
			if behind := now.Sub(next); behind > 0 {
				// fixed-rate schedule: drop the missed slots instead of
				// bursting to catch up
				skipped := int64(behind/p.Period) + 1
				next = next.Add(time.Duration(skipped) * p.Period)
				log.Printf("sim: %s %d fell behind, skipped %d tick(s)", p.Table, p.Address, skipped)
			}
			timer.Reset(time.Until(next))
		}
	}
}

// tick evaluates one step and commits the result. A NaN result holds the
// previous value and warns at most once per point.
func (s *Scheduler) tick(p Point, elapsed float64, rng *rand.Rand, warnedNaN *bool) {
	prior, err := s.priorValue(p)
	if err != nil {
		log.Printf("sim: %s %d read: %v", p.Table, p.Address, err)
		return
	}
	value := p.Spec.Evaluate(prior, elapsed, rng)
	if math.IsNaN(value) {
		if !*warnedNaN {
			log.Printf("sim: %s %d produced NaN, holding previous value", p.Table, p.Address)
			*warnedNaN = true
		}
		return
	}
	if err := s.commit(p, value); err != nil {
		log.Printf("sim: %s %d write: %v", p.Table, p.Address, err)
		return
	}
	if s.opts.LogUpdates {
		log.Printf("sim: %s %d = %g", p.Table, p.Address, value)
	}
	if s.opts.Sink != nil {
		s.opts.Sink.Record(time.Now(), p.Table, p.Address, value)
	}
}

func (s *Scheduler) priorValue(p Point) (float64, error) {
	if p.Table.Bits() {
		b, err := s.store.BitValue(p.Table, p.Address)
		if err != nil {
			return 0, err
		}
		if b {
			return 1, nil
		}
		return 0, nil
	}
	w, err := s.store.WordValue(p.Table, p.Address)
	return float64(w), err
}

func (s *Scheduler) commit(p Point, value float64) error {
	if p.Table.Bits() {
		return s.store.InternalSetBit(p.Table, p.Address, dynamics.ToBit(value))
	}
	return s.store.InternalSetWord(p.Table, p.Address, dynamics.ToWord(value))
}

// Build populates the store from the device configuration and returns the
// evolving points. Dynamics are compiled here, once, before any transport
// starts.
func Build(st *store.Store, dev *config.DeviceConfig, defaultUpdateMs int64) ([]Point, error) {
	var points []Point
	for kind, list := range dev.Tables() {
		for i := range list {
			pc := &list[i]
			if kind.Bits() {
				if err := st.AddBit(kind, pc.Address, dynamics.ToBit(pc.Initial)); err != nil {
					return nil, err
				}
			} else {
				if err := st.AddWord(kind, pc.Address, dynamics.ToWord(pc.Initial)); err != nil {
					return nil, err
				}
			}
			spec := pc.Dynamics.Spec()
			if err := spec.Compile(); err != nil {
				return nil, fmt.Errorf("%s address %d: %w", kind, pc.Address, err)
			}
			if !spec.Evolving() {
				continue
			}
			periodMs := defaultUpdateMs
			if pc.UpdateMs != nil {
				periodMs = *pc.UpdateMs
			}
			points = append(points, Point{
				Table:   kind,
				Address: pc.Address,
				Period:  time.Duration(periodMs) * time.Millisecond,
				Spec:    spec,
			})
		}
	}
	return points, nil
}
