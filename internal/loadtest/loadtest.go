// Package loadtest drives several simulated devices against one task service
// and checks that they converge.
//
// Every device is a full application with its own store. All devices sign in
// to the same account, make changes while offline, then sync concurrently.
// After the final round each device must hold exactly the tasks the service
// holds, with the same content and modification times.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/mschirtzinger/tasksync/internal/app"
	"github.com/mschirtzinger/tasksync/internal/cloud"
	"github.com/mschirtzinger/tasksync/internal/config"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Config holds configuration for a run.
type Config struct {
	// Devices is the number of simulated devices (default: 5)
	Devices int

	// TasksPerDevice is the number of tasks each device creates offline (default: 20)
	TasksPerDevice int

	// EditsPerDevice is the number of offline edits each device makes to its
	// own tasks (default: 10)
	EditsPerDevice int

	// Dir holds one data directory per device
	Dir string

	// RemoteURL is the service to use; empty starts an in-process server
	RemoteURL string

	// Username signs every device in to one account (default: "loadtest")
	Username string
	Password string

	// Logger for device activity (default: discarded)
	Logger *slog.Logger
}

// LatencyStats summarizes sync pass durations.
type LatencyStats struct {
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Passes int
	Errors int
}

// Report is the outcome of a run.
type Report struct {
	Devices    int
	Operations int // operations replayed to the service
	Conflicts  int // conflicts found and settled in favour of the service
	Tasks      int // tasks on the service at the end
	Converged  bool
	Divergent  []string // devices that do not match the service
	Sync       *LatencyStats
	Duration   time.Duration
}

type device struct {
	name string
	app  *app.App
	own  []string
	rng  *rand.Rand
}

// Run executes the create, edit and delete rounds and checks convergence.
func Run(ctx context.Context, lc *Config) (*Report, error) {
	cfg := withDefaults(lc)
	start := time.Now()

	remoteURL := cfg.RemoteURL
	if remoteURL == "" {
		srv := httptest.NewServer(cloud.New(&cloud.Config{Logger: cfg.Logger}).Handler())
		defer srv.Close()
		remoteURL = srv.URL
	}

	devices := make([]*device, 0, cfg.Devices)
	defer func() {
		for _, d := range devices {
			_ = d.app.Close()
		}
	}()
	for i := range cfg.Devices {
		d, err := openDevice(ctx, cfg, remoteURL, i)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}

	rec := &recorder{}
	report := &Report{Devices: cfg.Devices}

	round := func(name string, change func(*device) error) error {
		if err := forEach(devices, func(d *device) error {
			d.app.Monitor.SetOnline(false)
			return change(d)
		}); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		// The first concurrent pass pushes; the second pulls what the others pushed.
		for range 2 {
			if err := forEach(devices, func(d *device) error {
				return rec.sync(ctx, d, report)
			}); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
		return nil
	}

	if err := round("create", func(d *device) error { return d.create(ctx, cfg.TasksPerDevice) }); err != nil {
		return nil, err
	}
	if err := round("edit", func(d *device) error { return d.edit(ctx, cfg.EditsPerDevice) }); err != nil {
		return nil, err
	}
	if err := round("delete", func(d *device) error { return d.deleteOne(ctx) }); err != nil {
		return nil, err
	}

	// A final sequential pass settles anything a concurrent pass raced past.
	for _, d := range devices {
		if err := rec.sync(ctx, d, report); err != nil {
			return nil, err
		}
	}

	remoteTasks, err := devices[0].app.Client.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote tasks: %w", err)
	}
	report.Tasks = len(remoteTasks)
	for _, d := range devices {
		local, err := d.app.Tasks.List()
		if err != nil {
			return nil, err
		}
		if !sameTasks(local, remoteTasks) {
			report.Divergent = append(report.Divergent, d.name)
		}
	}
	report.Converged = len(report.Divergent) == 0
	report.Sync = computeLatencyStats(rec.durations)
	report.Sync.Errors = rec.errors
	report.Duration = time.Since(start)
	return report, nil
}

func withDefaults(lc *Config) Config {
	cfg := Config{}
	if lc != nil {
		cfg = *lc
	}
	if cfg.Devices <= 0 {
		cfg.Devices = 5
	}
	if cfg.TasksPerDevice <= 0 {
		cfg.TasksPerDevice = 20
	}
	if cfg.EditsPerDevice < 0 {
		cfg.EditsPerDevice = 0
	} else if cfg.EditsPerDevice == 0 {
		cfg.EditsPerDevice = 10
	}
	if cfg.Username == "" {
		cfg.Username = "loadtest"
	}
	if cfg.Password == "" {
		cfg.Password = "loadtest"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return cfg
}

func openDevice(ctx context.Context, cfg Config, remoteURL string, i int) (*device, error) {
	name := fmt.Sprintf("device-%02d", i)

	dc := config.DefaultConfig()
	dc.Data.Dir = filepath.Join(cfg.Dir, name)
	dc.Remote.URL = remoteURL
	dc.Remote.MaxRetries = 0

	a, err := app.New(dc, app.Options{Logger: cfg.Logger.With("device", name)})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if _, err := a.Login(ctx, cfg.Username, cfg.Password); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("%s: login failed: %w", name, err)
	}
	return &device{name: name, app: a, rng: rand.New(rand.NewSource(int64(i) + 1))}, nil
}

func (d *device) create(ctx context.Context, n int) error {
	priorities := []schema.Priority{schema.PriorityLow, schema.PriorityMedium, schema.PriorityMedium, schema.PriorityHigh}
	for i := range n {
		res, err := d.app.Tasks.Create(ctx, schema.TaskFields{
			Title:    fmt.Sprintf("%s task %d", d.name, i),
			Priority: priorities[d.rng.Intn(len(priorities))],
			Tags:     []string{"loadtest", d.name},
		})
		if err != nil {
			return fmt.Errorf("%s: create failed: %w", d.name, err)
		}
		d.own = append(d.own, res.Task.ID)
	}
	return nil
}

// edit changes only tasks this device created, so concurrent rounds never
// edit the same task from two devices.
func (d *device) edit(ctx context.Context, n int) error {
	if len(d.own) == 0 {
		return nil
	}
	for i := range n {
		id := d.own[d.rng.Intn(len(d.own))]
		var err error
		if i%2 == 0 {
			_, err = d.app.Tasks.ToggleCompletion(ctx, id)
		} else {
			desc := fmt.Sprintf("edited %d by %s", i, d.name)
			_, err = d.app.Tasks.Update(ctx, id, &schema.TaskPatch{Description: &desc})
		}
		if err != nil {
			return fmt.Errorf("%s: edit failed: %w", d.name, err)
		}
	}
	return nil
}

func (d *device) deleteOne(ctx context.Context) error {
	if len(d.own) == 0 {
		return nil
	}
	id := d.own[0]
	d.own = d.own[1:]
	if _, err := d.app.Tasks.Delete(ctx, id); err != nil {
		return fmt.Errorf("%s: delete failed: %w", d.name, err)
	}
	return nil
}

type recorder struct {
	mu        sync.Mutex
	durations []time.Duration
	errors    int
}

// sync runs one pass on d and records it. Deletions made by other devices
// surface as conflicts; they are settled by taking the service's side.
func (r *recorder) sync(ctx context.Context, d *device, report *Report) error {
	res, err := d.app.Sync.Sync(ctx)
	if err == nil {
		for _, c := range res.Conflicts {
			if err = d.app.Sync.ResolveConflict(ctx, c.TaskID, schema.ResolveRemote); err != nil {
				break
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errors++
		return fmt.Errorf("%s: sync failed: %w", d.name, err)
	}
	r.durations = append(r.durations, res.Duration)
	report.Operations += res.Synced
	report.Conflicts += len(res.Conflicts)
	return nil
}

// forEach runs fn for every device concurrently and returns the first error.
func forEach(devices []*device, fn func(*device) error) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(devices))
	for _, d := range devices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(d); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	return <-errs
}

func sameTasks(local, remote []*schema.Task) bool {
	if len(local) != len(remote) {
		return false
	}
	byID := make(map[string]*schema.Task, len(remote))
	for _, t := range remote {
		byID[t.ID] = t
	}
	for _, l := range local {
		r, ok := byID[l.ID]
		if !ok || !l.UpdatedAt.Equal(r.UpdatedAt) || !l.SameContent(r) {
			return false
		}
	}
	return true
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   sum / time.Duration(len(sorted)),
		P50:    sorted[len(sorted)*50/100],
		P95:    sorted[len(sorted)*95/100],
		P99:    sorted[len(sorted)*99/100],
		Passes: len(sorted),
	}
}
