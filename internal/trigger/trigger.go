// Package trigger decides when an automatic summary is due.
package trigger

import (
	"fmt"
	"time"

	"github.com/stellarlinkco/digestbot/internal/config"
	"github.com/stellarlinkco/digestbot/internal/cron"
)

// Trigger is one of the interchangeable summary policies. Observe is called
// from the gateway loop for every ingested message; Install registers any
// time-based fires with the scheduler.
type Trigger interface {
	Name() string
	Observe() bool
	Reset()
	Install(svc *cron.Service) (*cron.Job, error)
}

// New selects the policy named in cfg.
func New(cfg config.TriggerConfig) (Trigger, error) {
	switch cfg.Policy {
	case "", config.TriggerPolicyCount:
		if cfg.Count <= 0 {
			return nil, fmt.Errorf("count trigger needs a positive limit, got %d", cfg.Count)
		}
		return &Count{Limit: cfg.Count}, nil
	case config.TriggerPolicyInterval:
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("parse trigger interval: %w", err)
		}
		if d < time.Second {
			return nil, fmt.Errorf("trigger interval %s is shorter than one second", d)
		}
		return &Interval{Every: d}, nil
	case config.TriggerPolicyDaily:
		if _, _, err := cron.ParseClock(cfg.DailyAt); err != nil {
			return nil, err
		}
		return &Daily{At: cfg.DailyAt}, nil
	default:
		return nil, fmt.Errorf("unknown trigger policy %q", cfg.Policy)
	}
}

// Count fires after Limit ingested messages. The counter lives in memory and
// restarts from zero with the process.
type Count struct {
	Limit int
	seen  int
}

func (c *Count) Name() string { return fmt.Sprintf("count(%d)", c.Limit) }

func (c *Count) Observe() bool {
	c.seen++
	return c.seen >= c.Limit
}

func (c *Count) Reset() { c.seen = 0 }

func (c *Count) Install(*cron.Service) (*cron.Job, error) { return nil, nil }

// Interval fires every Every from process start.
type Interval struct {
	Every time.Duration
}

func (i *Interval) Name() string { return "interval(" + i.Every.String() + ")" }

func (i *Interval) Observe() bool { return false }

func (i *Interval) Reset() {}

func (i *Interval) Install(svc *cron.Service) (*cron.Job, error) {
	return svc.AddJob("summary-interval", cron.Schedule{Kind: cron.KindEvery, Every: i.Every})
}

// Daily fires once a day at At ("HH:MM" in the scheduler's location).
type Daily struct {
	At string
}

func (d *Daily) Name() string { return "daily(" + d.At + ")" }

func (d *Daily) Observe() bool { return false }

func (d *Daily) Reset() {}

func (d *Daily) Install(svc *cron.Service) (*cron.Job, error) {
	return svc.AddJob("summary-daily", cron.Schedule{Kind: cron.KindDaily, At: d.At})
}
