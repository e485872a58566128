package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nebula-labs/nebula/internal/bundle"
	"github.com/nebula-labs/nebula/internal/catalog"
)

// fakeClient serves an in-memory catalog. Payload locators are "<id>@<hash>".
type fakeClient struct {
	mu          sync.Mutex
	cat         *catalog.Catalog
	catErr      error
	payloads    map[string][]byte
	failing     map[string]bool
	fetches     []string
	delay       time.Duration
	inflight    int
	maxInflight int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		cat:      &catalog.Catalog{FormatVersion: "1.0.0", Origin: catalog.Origin{ID: "test", Name: "Test Origin"}},
		payloads: make(map[string][]byte),
		failing:  make(map[string]bool),
	}
}

func locator(id, hash string) string {
	return id + "@" + hash
}

// publish replaces the catalog with descs and registers their payloads.
func (c *fakeClient) publish(descs ...bundle.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cat = &catalog.Catalog{FormatVersion: "1.0.0", Origin: c.cat.Origin, Bundles: descs}
	for _, d := range descs {
		c.payloads[d.PayloadLocator] = []byte("payload " + d.PayloadLocator)
	}
}

func (c *fakeClient) fail(locator string) {
	c.mu.Lock()
	c.failing[locator] = true
	c.mu.Unlock()
}

func (c *fakeClient) fetched() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.fetches...)
}

func (c *fakeClient) FetchCatalog(ctx context.Context) (*catalog.Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catErr != nil {
		return nil, c.catErr
	}
	cp := *c.cat
	cp.Bundles = append([]bundle.Descriptor(nil), c.cat.Bundles...)
	return &cp, nil
}

func (c *fakeClient) FetchPayload(ctx context.Context, loc string) ([]byte, error) {
	c.mu.Lock()
	c.fetches = append(c.fetches, loc)
	c.inflight++
	if c.inflight > c.maxInflight {
		c.maxInflight = c.inflight
	}
	delay := c.delay
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inflight--
		c.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing[loc] {
		return nil, fmt.Errorf("connection reset fetching %s", loc)
	}
	data, ok := c.payloads[loc]
	if !ok {
		return nil, fmt.Errorf("status 404 for %s", loc)
	}
	return data, nil
}

func desc(id, hash string, deps ...string) bundle.Descriptor {
	return bundle.Descriptor{
		ID:             id,
		Version:        1,
		ContentHash:    hash,
		Dependencies:   deps,
		PayloadLocator: locator(id, hash),
		UpdatedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// memStore is an index.Store kept in memory.
type memStore struct {
	mu    sync.Mutex
	idx   *bundle.Index
	saves int
	err   error
}

// failSaves makes every later Save return err.
func (s *memStore) failSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *memStore) Load(ctx context.Context) (*bundle.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx == nil {
		return bundle.NewIndex(), nil
	}
	return s.idx.Clone(), nil
}

func (s *memStore) Save(ctx context.Context, idx *bundle.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.idx = idx.Clone()
	s.saves++
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// MockStore is a mock implementation of index.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load(ctx context.Context) (*bundle.Index, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bundle.Index), args.Error(1)
}

func (m *MockStore) Save(ctx context.Context, idx *bundle.Index) error {
	args := m.Called(ctx, idx)
	return args.Error(0)
}

var errDiskFull = errors.New("disk full")
