// Package refresh keeps derived event statuses current by re-running the
// status recompute on a cron schedule.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "festsched/internal/log"
	"festsched/internal/model"
	"festsched/internal/monitoring"
	"festsched/internal/schedule"
)

// DefaultSpec matches the 30 000 ms poll of the festival board.
const DefaultSpec = "@every 30s"

// Interval reports the gap between two consecutive ticks of spec after now.
// For "@every" specs this is the fixed delay.
func Interval(spec string, now time.Time) (time.Duration, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("refresh: invalid schedule %q: %w", spec, err)
	}
	if every, ok := sched.(cron.ConstantDelaySchedule); ok {
		return every.Delay, nil
	}
	next := sched.Next(now)
	return sched.Next(next).Sub(next), nil
}

// Target is the collection being kept current.
type Target interface {
	Refresh() []schedule.Change
}

// Poller owns the recompute timer. It must be stopped (directly or by
// cancelling the context given to Start) when its owner is torn down.
type Poller struct {
	target Target
	cron   *cron.Cron

	stopOnce sync.Once
	done     chan struct{}
}

// Start recomputes statuses immediately and then on every tick of spec
// (evaluated in loc). The poller stops when ctx is cancelled.
func Start(ctx context.Context, target Target, spec string, loc *time.Location) (*Poller, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.Local
	}

	p := &Poller{
		target: target,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		done: make(chan struct{}),
	}
	if _, err := p.cron.AddFunc(spec, func() { p.Tick() }); err != nil {
		return nil, fmt.Errorf("refresh: invalid schedule %q: %w", spec, err)
	}

	p.Tick()
	p.cron.Start()
	appLog.Info("status refresh started", "schedule", spec, "timezone", loc.String())

	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-p.done:
		}
	}()

	return p, nil
}

// Tick runs one recompute pass and returns the transitions it observed.
func (p *Poller) Tick() []schedule.Change {
	began := time.Now()
	changes := p.target.Refresh()

	to := make([]model.Status, 0, len(changes))
	for _, ch := range changes {
		to = append(to, ch.To)
		appLog.Info("event status changed", "id", ch.ID, "title", ch.Title, "from", ch.From, "to", ch.To)
	}
	monitoring.RecordRefresh(time.Since(began).Seconds(), to)
	appLog.Debug("status refresh tick", "changes", len(changes))
	return changes
}

// Stop cancels the schedule and waits for a running tick to finish. It is
// safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		<-p.cron.Stop().Done()
		close(p.done)
		appLog.Info("status refresh stopped")
	})
}

// Done is closed once the poller has stopped.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}
