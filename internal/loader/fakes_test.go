package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/container"
)

type fakeArchive struct {
	name string

	mu       sync.Mutex
	loads    map[string]int
	released map[string]int
	closed   bool
	closeAll bool
}

func (a *fakeArchive) Name() string { return a.name }

func (a *fakeArchive) LoadObject(ctx context.Context, path string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "missing" {
		return nil, container.ErrObjectNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loads[path]++
	return &container.Object{Path: path, Data: []byte(a.name + ":" + path)}, nil
}

func (a *fakeArchive) Release(path string, _ any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.released[path]++
	return nil
}

func (a *fakeArchive) Close(releaseAll bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.closeAll = releaseAll
	return nil
}

func (a *fakeArchive) loadCount(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loads[path]
}

func (a *fakeArchive) releaseCount(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released[path]
}

type fakeSource struct {
	mu       sync.Mutex
	opens    map[string]*atomic.Int32
	archives map[string]*fakeArchive
	fail     map[string]bool
	gate     chan struct{}
	started  chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		opens:    make(map[string]*atomic.Int32),
		archives: make(map[string]*fakeArchive),
		fail:     make(map[string]bool),
	}
}

func (s *fakeSource) OpenBundle(ctx context.Context, entry catalog.BundleEntry) (container.Archive, error) {
	s.mu.Lock()
	counter := s.opens[entry.Name]
	if counter == nil {
		counter = &atomic.Int32{}
		s.opens[entry.Name] = counter
	}
	fail := s.fail[entry.Name]
	gate, started := s.gate, s.started
	s.mu.Unlock()
	counter.Add(1)

	if started != nil {
		started <- entry.Name
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("transfer failed")
	}
	a := &fakeArchive{name: entry.Name, loads: map[string]int{}, released: map[string]int{}}
	s.mu.Lock()
	s.archives[entry.Name] = a
	s.mu.Unlock()
	return a, nil
}

func (s *fakeSource) openCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.opens[name]; c != nil {
		return int(c.Load())
	}
	return 0
}

func (s *fakeSource) archive(name string) *fakeArchive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archives[name]
}

func (s *fakeSource) setFail(name string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[name] = fail
}

type recordingScenes struct {
	mu       sync.Mutex
	loads    int
	unloads  int
	failLoad bool
}

func (r *recordingScenes) LoadScene(context.Context, string, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failLoad {
		return errors.New("scene load failed")
	}
	r.loads++
	return nil
}

func (r *recordingScenes) UnloadScene(context.Context, string, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unloads++
	return nil
}

func testCatalog() *catalog.Catalog {
	return catalog.New("", catalog.Remote,
		catalog.BundleEntry{
			Name:         "A",
			Hash:         catalog.HashBytes([]byte("A")),
			Dependencies: []string{"B"},
			Objects:      map[string]string{"X": "assets/X.prefab", "Y": "assets/Y.prefab", "Level": "scenes/Level.scene"},
		},
		catalog.BundleEntry{Name: "B", Hash: catalog.HashBytes([]byte("B"))},
		catalog.BundleEntry{
			Name:         "C",
			Hash:         catalog.HashBytes([]byte("C")),
			Dependencies: []string{"A", "B"},
		},
	)
}
