package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/devwatch/internal/domain"
)

const waitTimeout = 2 * time.Second

type fakeProcess struct {
	pid     int
	killErr error
	done    chan struct{}

	mu     sync.Mutex
	kills  int
	closer sync.Once
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) PID() int              { return p.pid }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Kill(_ context.Context) error {
	p.mu.Lock()
	p.kills++
	p.mu.Unlock()
	p.closer.Do(func() { close(p.done) })
	return p.killErr
}

func (p *fakeProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills > 0
}

// fakeBuilder records concurrency. When hold is set, Build blocks until hold
// is closed or ctx is cancelled.
type fakeBuilder struct {
	mu        sync.Mutex
	err       error
	hold      chan struct{}
	calls     int
	active    int
	maxActive int
	cancelled int
	started   chan domain.BuildRequest
}

func newFakeBuilder() *fakeBuilder {
	return &fakeBuilder{started: make(chan domain.BuildRequest, 64)}
}

func (b *fakeBuilder) Build(ctx context.Context, req domain.BuildRequest) error {
	b.mu.Lock()
	b.calls++
	b.active++
	if b.active > b.maxActive {
		b.maxActive = b.active
	}
	hold, err := b.hold, b.err
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.active--
		b.mu.Unlock()
	}()

	select {
	case b.started <- req:
	default:
	}

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			b.mu.Lock()
			b.cancelled++
			b.mu.Unlock()
			return ctx.Err()
		}
	}
	if err != nil {
		return &domain.BuildError{Command: "fake build", Err: err}
	}
	return nil
}

func (b *fakeBuilder) setErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *fakeBuilder) setHold(hold chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hold = hold
}

func (b *fakeBuilder) stats() (calls, maxActive, cancelled int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls, b.maxActive, b.cancelled
}

type fakeLauncher struct {
	mu      sync.Mutex
	err     error
	killErr error
	nextPID int
	procs   []*fakeProcess
}

func (l *fakeLauncher) Launch(_ context.Context, _ domain.BuildRequest) (domain.ManagedProcess, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, &domain.RunError{Command: "fake run", Err: l.err}
	}
	l.nextPID++
	p := newFakeProcess(1000 + l.nextPID)
	p.killErr = l.killErr
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *fakeLauncher) processes() []*fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeProcess(nil), l.procs...)
}

func (l *fakeLauncher) alive() int {
	n := 0
	for _, p := range l.processes() {
		if !p.Killed() {
			n++
		}
	}
	return n
}

// resultRecorder collects results delivered through a ResultCallback.
type resultRecorder struct {
	ch chan domain.BuildResult
}

func newResultRecorder() *resultRecorder {
	return &resultRecorder{ch: make(chan domain.BuildResult, 128)}
}

func (r *resultRecorder) callback(res domain.BuildResult) { r.ch <- res }

func (r *resultRecorder) next(t *testing.T) domain.BuildResult {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for build result")
		return domain.BuildResult{}
	}
}

// nextWithStatus skips results until one with the given status arrives.
func (r *resultRecorder) nextWithStatus(t *testing.T, status domain.BuildStatus) domain.BuildResult {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case res := <-r.ch:
			if res.Status == status {
				return res
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s result", status)
			return domain.BuildResult{}
		}
	}
}

// fakeNotifier is a ChangeNotifier driven by the test.
type fakeNotifier struct {
	changes  chan domain.ChangeEvent
	err      error
	stopOnce sync.Once
	stops    int
	mu       sync.Mutex
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{changes: make(chan domain.ChangeEvent)}
}

func (n *fakeNotifier) Changes() <-chan domain.ChangeEvent { return n.changes }

func (n *fakeNotifier) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

func (n *fakeNotifier) Stop() error {
	n.mu.Lock()
	n.stops++
	n.mu.Unlock()
	n.stopOnce.Do(func() { close(n.changes) })
	return nil
}

// fail terminates the stream with a fatal runtime error.
func (n *fakeNotifier) fail(err error) {
	n.mu.Lock()
	n.err = &domain.WatchRuntimeError{Fatal: true, Err: err}
	n.mu.Unlock()
	n.stopOnce.Do(func() { close(n.changes) })
}

// fakeStarter hands out notifier, or the one registered for the target root.
type fakeStarter struct {
	notifier *fakeNotifier
	byRoot   map[string]*fakeNotifier
	err      error
}

func (s fakeStarter) Start(target domain.WatchTarget) (ChangeNotifier, error) {
	if s.err != nil {
		return nil, s.err
	}
	if n, ok := s.byRoot[target.Root()]; ok {
		return n, nil
	}
	return s.notifier, nil
}

type fakeToolchain struct {
	builder  *fakeBuilder
	launcher *fakeLauncher
	frontend *fakeBuilder
}

func (f fakeToolchain) Builder(Config) Builder         { return f.builder }
func (f fakeToolchain) Launcher(Config) Launcher       { return f.launcher }
func (f fakeToolchain) FrontendBuilder(Config) Builder { return f.frontend }

type memoryHistory struct {
	mu      sync.Mutex
	entries []domain.BuildRecord
	err     error
}

func (m *memoryHistory) Load() (domain.History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.History{Entries: append([]domain.BuildRecord(nil), m.entries...)}, nil
}

func (m *memoryHistory) Append(entry domain.BuildRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryHistory) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type fakeReload struct {
	mu      sync.Mutex
	ids     []string
	resumed string
	served  chan string
}

func (f *fakeReload) Broadcast(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func (f *fakeReload) Resume(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed = id
}

func (f *fakeReload) resumedID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumed
}

func (f *fakeReload) Serve(ctx context.Context, addr string) error {
	if f.served != nil {
		f.served <- addr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeReload) broadcasts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

type fakeConfigLoader struct {
	cfg    Config
	exists bool
	err    error
}

func (f fakeConfigLoader) Load(string) (Config, error) { return f.cfg, f.err }
func (f fakeConfigLoader) Exists(string) (bool, error) { return f.exists, nil }

type fakeDetector struct {
	cfg Config
	err error
}

func (f fakeDetector) Detect(string) (Config, error) { return f.cfg, f.err }

var errBoom = errors.New("boom")

// eventually polls cond until it holds or the wait timeout elapses.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
