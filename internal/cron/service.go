package cron

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"
)

type Kind string

const (
	KindOnce  Kind = "once"  // run once after Delay
	KindEvery Kind = "every" // run every Every, counted from Start
	KindDaily Kind = "daily" // run daily at At ("HH:MM", service location)
)

type Schedule struct {
	Kind  Kind
	Delay time.Duration
	Every time.Duration
	At    string
}

type Job struct {
	ID       string
	Name     string
	Schedule Schedule
	State    JobState
}

type JobState struct {
	LastRunAt time.Time
	Runs      int
}

func NewJob(name string, schedule Schedule) Job {
	return Job{
		ID:       uuid.NewString(),
		Name:     name,
		Schedule: schedule,
	}
}

// Service runs in-memory jobs on robfig/cron. Callbacks run on the cron
// goroutine; OnJob should hand work off rather than block for long.
type Service struct {
	loc      *time.Location
	mu       sync.Mutex
	jobs     []Job
	OnJob    func(job Job)
	cron     *rcron.Cron
	entryMap map[string]rcron.EntryID // job ID -> cron entry ID
	stopCh   chan struct{}
}

func NewService(loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		loc:      loc,
		entryMap: make(map[string]rcron.EntryID),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		return fmt.Errorf("cron service already started")
	}
	s.cron = rcron.New(rcron.WithLocation(s.loc))
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	for i := range s.jobs {
		if err := s.registerJob(s.jobs[i]); err != nil {
			log.Printf("[cron] failed to register job %s: %v", s.jobs[i].Name, err)
		}
	}
	count := len(s.jobs)
	s.cron.Start()
	s.mu.Unlock()

	log.Printf("[cron] started with %d jobs", count)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
		}
	}()
	return nil
}

// registerJob must be called with s.mu held.
func (s *Service) registerJob(job Job) error {
	sched, err := s.scheduleFor(job.Schedule, time.Now())
	if err != nil {
		return err
	}
	jobID := job.ID
	id := s.cron.Schedule(sched, rcron.FuncJob(func() {
		s.executeJob(jobID)
	}))
	s.entryMap[job.ID] = id
	return nil
}

func (s *Service) scheduleFor(sc Schedule, now time.Time) (rcron.Schedule, error) {
	switch sc.Kind {
	case KindEvery:
		if sc.Every < time.Second {
			return nil, fmt.Errorf("interval %s is shorter than one second", sc.Every)
		}
		return rcron.Every(sc.Every), nil
	case KindDaily:
		hour, minute, err := ParseClock(sc.At)
		if err != nil {
			return nil, err
		}
		return rcron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	case KindOnce:
		if sc.Delay < 0 {
			return nil, fmt.Errorf("negative delay %s", sc.Delay)
		}
		return onceSchedule{at: now.Add(sc.Delay)}, nil
	default:
		return nil, fmt.Errorf("unknown schedule kind %q", sc.Kind)
	}
}

func (s *Service) executeJob(id string) {
	s.mu.Lock()
	var job Job
	found := false
	for i := range s.jobs {
		if s.jobs[i].ID == id {
			s.jobs[i].State.LastRunAt = time.Now()
			s.jobs[i].State.Runs++
			job = s.jobs[i]
			found = true
			if job.Schedule.Kind == KindOnce {
				s.removeLocked(i)
			}
			break
		}
	}
	onJob := s.OnJob
	s.mu.Unlock()

	if !found {
		return
	}
	log.Printf("[cron] executing job %s (%s)", job.Name, job.ID)
	if onJob == nil {
		log.Printf("[cron] no OnJob handler set")
		return
	}
	onJob(job)
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[cron] stop timeout waiting for running jobs")
		}
	}
	log.Printf("[cron] stopped")
}

// AddJob validates schedule and registers it immediately when the service
// is running.
func (s *Service) AddJob(name string, schedule Schedule) (*Job, error) {
	if _, err := s.scheduleFor(schedule, time.Now()); err != nil {
		return nil, fmt.Errorf("job %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := NewJob(name, schedule)
	s.jobs = append(s.jobs, job)
	if s.cron != nil {
		if err := s.registerJob(job); err != nil {
			s.jobs = s.jobs[:len(s.jobs)-1]
			return nil, fmt.Errorf("job %s: %w", name, err)
		}
	}
	return &job, nil
}

func (s *Service) removeLocked(i int) {
	id := s.jobs[i].ID
	if entryID, ok := s.entryMap[id]; ok && s.cron != nil {
		s.cron.Remove(entryID)
		delete(s.entryMap, id)
	}
	s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
}

func (s *Service) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Job, len(s.jobs))
	copy(result, s.jobs)
	return result
}

// NextRun reports when a registered job fires next; zero if unknown.
func (s *Service) NextRun(id string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	entryID, ok := s.entryMap[id]
	if !ok || s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(entryID).Next
}

// onceSchedule fires a single time; a zero Next makes cron drop the entry.
type onceSchedule struct {
	at time.Time
}

func (o onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

// ParseClock parses a "HH:MM" wall-clock time.
func ParseClock(at string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q (want HH:MM): %w", at, err)
	}
	return t.Hour(), t.Minute(), nil
}
