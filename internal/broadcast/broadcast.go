package broadcast

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"wagate/internal/config"
	"wagate/internal/session"
	logx "wagate/pkg/logx"
)

// LastRun records the outcome of a job's most recent firing.
type LastRun struct {
	At     time.Time
	Sent   int
	Failed int
}

// Status is a point-in-time view of one job for the admin surface.
type Status struct {
	Name    string
	Spec    string
	Enabled bool
	Last    LastRun
}

type jobState struct {
	cfg     config.BroadcastJob
	enabled bool // runtime state; resets to the configured default on restart
	entry   cron.EntryID
	last    LastRun
}

// Service fires configured broadcast jobs on their cron triggers and fans the
// picked message out to every destination, independently of the inbound
// pipeline.
//
// Triggers run in a single fixed time.Location; there is no daylight-saving
// recalculation. The runtime enabled flag is owned here and mutated only via
// SetEnabled; a toggle takes effect at the next firing.
type Service struct {
	mu sync.Mutex

	loc      *time.Location
	limiter  *rate.Limiter
	provider session.Provider
	log      logx.Logger

	c    *cron.Cron
	jobs map[string]*jobState

	rngMu sync.Mutex
	rng   *rand.Rand

	runCtx context.Context
}

func New(cfg config.BroadcastConfig, provider session.Provider, log logx.Logger) (*Service, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("broadcast.timezone: %w", err)
		}
		loc = l
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s := &Service{
		loc:      loc,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		provider: provider,
		log:      log,
		jobs:     map[string]*jobState{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, j := range cfg.Jobs {
		s.jobs[j.Name] = &jobState{cfg: j, enabled: j.Enabled}
	}
	return s, nil
}

// Start registers all jobs and starts the cron runner.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.runCtx = ctx

	c := cron.New(cron.WithLocation(s.loc))
	for name, st := range s.jobs {
		name := name
		id, err := c.AddFunc(st.cfg.Spec, func() { s.fire(name) })
		if err != nil {
			return fmt.Errorf("broadcast job %q: bad spec %q: %w", name, st.cfg.Spec, err)
		}
		st.entry = id
	}
	s.c = c
	c.Start()
	s.log.Info("broadcast scheduler started",
		logx.Int("jobs", len(s.jobs)), logx.String("tz", s.loc.String()))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		s.log.Info("broadcast scheduler stopped")
	}
}

// Apply replaces job definitions from a reloaded config. Runtime enabled
// overrides survive for jobs that keep their name; new jobs start with their
// configured default. Requires a running scheduler.
func (s *Service) Apply(cfg config.BroadcastConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return errors.New("broadcast scheduler not started")
	}

	// Parse every spec up front: a reload carrying one bad spec must leave
	// the running schedule untouched, not half-replaced.
	next := map[string]*jobState{}
	scheds := map[string]cron.Schedule{}
	for _, j := range cfg.Jobs {
		sched, err := cron.ParseStandard(j.Spec)
		if err != nil {
			return fmt.Errorf("broadcast job %q: bad spec %q: %w", j.Name, j.Spec, err)
		}
		scheds[j.Name] = sched
		st := &jobState{cfg: j, enabled: j.Enabled}
		if old, ok := s.jobs[j.Name]; ok {
			st.enabled = old.enabled
			st.last = old.last
		}
		next[j.Name] = st
	}

	for _, st := range s.jobs {
		s.c.Remove(st.entry)
	}
	for name, st := range next {
		name := name
		st.entry = s.c.Schedule(scheds[name], cron.FuncJob(func() { s.fire(name) }))
	}
	s.jobs = next
	s.log.Info("broadcast jobs reloaded", logx.Int("jobs", len(next)))
	return nil
}

// SetEnabled flips a job's runtime flag. Returns false for unknown jobs.
func (s *Service) SetEnabled(name string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[name]
	if !ok {
		return false
	}
	st.enabled = enabled
	s.log.Info("broadcast job toggled", logx.String("job", name), logx.Bool("enabled", enabled))
	return true
}

func (s *Service) Enabled(name string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[name]
	if !ok {
		return false, false
	}
	return st.enabled, true
}

// Jobs returns the status of all jobs, sorted by name.
func (s *Service) Jobs() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.jobs))
	for name, st := range s.jobs {
		out = append(out, Status{Name: name, Spec: st.cfg.Spec, Enabled: st.enabled, Last: st.last})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// fire runs one firing of the named job.
func (s *Service) fire(name string) {
	s.mu.Lock()
	st, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	if !st.enabled {
		s.mu.Unlock()
		s.log.Debug("broadcast job disabled; skipping", logx.String("job", name))
		return
	}
	jobCfg := st.cfg
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	sent, failed := s.run(ctx, jobCfg)

	s.mu.Lock()
	if st, ok := s.jobs[name]; ok {
		st.last = LastRun{At: time.Now().In(s.loc), Sent: sent, Failed: failed}
	}
	s.mu.Unlock()
}

// run resolves destinations and sends one pool message to each.
// A failed send to one destination never aborts the rest.
func (s *Service) run(ctx context.Context, job config.BroadcastJob) (sent, failed int) {
	h, ok := s.provider.Current()
	if !ok {
		s.log.Warn("broadcast skipped: no live session", logx.String("job", job.Name))
		return 0, 0
	}

	dests := make([]session.JID, 0, len(job.Destinations))
	if job.AllGroups {
		// Fresh enumeration per firing: group membership changes over time.
		groups, err := h.AllGroups(ctx)
		if err != nil {
			s.log.Warn("broadcast skipped: group enumeration failed",
				logx.String("job", job.Name), logx.Err(err))
			return 0, 0
		}
		dests = append(dests, groups...)
	} else {
		for _, d := range job.Destinations {
			dests = append(dests, session.JID(d))
		}
	}

	text := s.pick(job.Pool)
	if text == "" {
		return 0, 0
	}

	for _, dest := range dests {
		if ctx.Err() != nil {
			return sent, failed
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return sent, failed
		}
		if err := h.Send(ctx, dest, session.Outgoing{Text: text}); err != nil {
			failed++
			s.log.Warn("broadcast send failed",
				logx.String("job", job.Name), logx.String("dest", dest.String()), logx.Err(err))
			continue
		}
		sent++
	}

	s.log.Info("broadcast fired", logx.String("job", job.Name),
		logx.Int("sent", sent), logx.Int("failed", failed))
	return sent, failed
}

func (s *Service) pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	s.rngMu.Lock()
	i := s.rng.Intn(len(pool))
	s.rngMu.Unlock()
	return pool[i]
}
