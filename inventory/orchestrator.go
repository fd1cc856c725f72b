// Package inventory ties collection results to the filter configuration and
// keeps the filtered, highlighted view that callers display.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"pkgcheck/filtering"
	"pkgcheck/logger"
	"pkgcheck/scanner"
)

var ErrScanInProgress = errors.New("a scan is already in progress")

// Collector produces the raw records for one scan.
type Collector interface {
	Collect(ctx context.Context, root string, mode scanner.Mode, progress scanner.Progress) ([]scanner.FileRecord, error)
}

type Options struct {
	// Progress receives collection updates on the foreground goroutine.
	Progress scanner.Progress
	// OnUpdate runs on the foreground after the visible set changes.
	OnUpdate func()
	// OnError runs on the foreground when a scan fails.
	OnError func(error)
}

// Status summarizes the current view.
type Status struct {
	Total       int
	Shown       int
	Hidden      int
	Highlighted int
}

func (s Status) String() string {
	return fmt.Sprintf("Files shown: %d. Files hidden: %d.", s.Shown, s.Hidden)
}

// Orchestrator owns the raw record list and the view derived from it. State
// is written only by closures running on the Queue, or by ApplyFiltering and
// Clear when the caller is the foreground goroutine.
type Orchestrator struct {
	collector   Collector
	holder      *filtering.Holder
	queue       *Queue
	opts        Options
	unsubscribe func()

	taskMu sync.Mutex
	task   *Task

	mu          sync.RWMutex
	raw         []scanner.FileRecord
	highlighted []bool
	visible     []int
}

// New creates an orchestrator and subscribes it to holder. Every
// configuration change posts a re-filter onto queue.
func New(collector Collector, holder *filtering.Holder, queue *Queue, opts Options) *Orchestrator {
	if opts.Progress == nil {
		opts.Progress = scanner.NopProgress
	}
	o := &Orchestrator{
		collector: collector,
		holder:    holder,
		queue:     queue,
		opts:      opts,
	}
	o.unsubscribe = holder.Subscribe(func(*filtering.Info) {
		queue.Post(o.ApplyFiltering)
	})
	return o
}

// Close detaches from the configuration holder and cancels any running scan.
func (o *Orchestrator) Close() {
	o.unsubscribe()
	o.taskMu.Lock()
	t := o.task
	o.taskMu.Unlock()
	if t != nil {
		t.Cancel()
	}
}

// Rescan starts a collection in the background. Its progress, and then its
// result, are posted to the queue; the raw list is replaced and filtering
// re-applied only when the collection succeeds. Only one scan runs at a time.
func (o *Orchestrator) Rescan(ctx context.Context, root string, mode scanner.Mode) (*Task, error) {
	o.taskMu.Lock()
	if o.task != nil {
		o.taskMu.Unlock()
		return nil, ErrScanInProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	t := newTask(cancel)
	o.task = t
	o.taskMu.Unlock()

	logger.Infof("Scanning %s (%s)", root, mode)
	go func() {
		records, err := o.collector.Collect(ctx, root, mode, foregroundProgress{queue: o.queue, sink: o.opts.Progress})
		if o.queue.Post(func() { o.complete(t, records, err) }) {
			select {
			case <-t.Done():
				return
			case <-o.queue.Closed():
			}
		}
		// The result will never be applied; free the slot for later scans.
		o.release(t)
		t.finish(errors.Join(err, ErrQueueClosed))
	}()
	return t, nil
}

func (o *Orchestrator) complete(t *Task, records []scanner.FileRecord, err error) {
	defer t.finish(err)
	defer o.release(t)

	if err != nil {
		logger.Errorf("Scan failed: %v", err)
		if o.opts.OnError != nil {
			o.opts.OnError(err)
		}
		return
	}
	o.mu.Lock()
	o.raw = records
	o.mu.Unlock()
	o.ApplyFiltering()
	logger.Infof("Scan finished: %s", o.Status())
}

func (o *Orchestrator) release(t *Task) {
	o.taskMu.Lock()
	if o.task == t {
		o.task = nil
	}
	o.taskMu.Unlock()
}

// ApplyFiltering rebuilds the visible set from every raw record and
// recomputes highlighting over all of them, visible or not.
func (o *Orchestrator) ApplyFiltering() {
	info := o.holder.Info()

	o.mu.Lock()
	visible := make([]int, 0, len(o.raw))
	highlighted := make([]bool, len(o.raw))
	for i, r := range o.raw {
		if info.Passes(r) {
			visible = append(visible, i)
		}
		highlighted[i] = info.ShouldHighlight(r)
	}
	o.visible = visible
	o.highlighted = highlighted
	o.mu.Unlock()

	if o.opts.OnUpdate != nil {
		o.opts.OnUpdate()
	}
}

// Clear drops all records and re-applies filtering.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	o.raw = nil
	o.mu.Unlock()
	o.ApplyFiltering()
}

// Visible returns copies of the visible records with Highlighted set. The
// copies share no state with the orchestrator.
func (o *Orchestrator) Visible() []scanner.FileRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]scanner.FileRecord, len(o.visible))
	for n, i := range o.visible {
		out[n] = o.raw[i]
		out[n].Hashes = maps.Clone(o.raw[i].Hashes)
		out[n].Highlighted = o.highlighted[i]
	}
	return out
}

func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := Status{Total: len(o.raw), Shown: len(o.visible)}
	s.Hidden = s.Total - s.Shown
	for _, i := range o.visible {
		if o.highlighted[i] {
			s.Highlighted++
		}
	}
	return s
}

// foregroundProgress forwards collector updates through the queue so the
// sink only ever runs on the foreground goroutine.
type foregroundProgress struct {
	queue *Queue
	sink  scanner.Progress
}

func (p foregroundProgress) Phase(label string) {
	p.queue.Post(func() { p.sink.Phase(label) })
}

func (p foregroundProgress) Percent(v int) {
	p.queue.Post(func() { p.sink.Percent(v) })
}

func (p foregroundProgress) Indeterminate() {
	p.queue.Post(p.sink.Indeterminate)
}
