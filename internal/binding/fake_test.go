package binding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/visbind/internal/objects"
)

type written struct {
	id  string
	val any
}

// fakeClient is an in-memory Client that counts calls.
type fakeClient struct {
	mu       sync.Mutex
	objects  map[string]*objects.Object
	states   map[string]*objects.State
	history  map[string][]objects.Sample
	batchErr error
	histErr  error

	// historyGate, when set, blocks GetHistory until closed.
	historyGate    chan struct{}
	historyStarted chan string

	// afterGetState, when set, runs after each state read returns its value.
	afterGetState func(id string)

	batchCalls   int
	getCalls     int
	historyCalls int
	writes       []written
	handlers     map[int]StateHandler
	nextHandler  int
}

func newFakeClient(objs ...*objects.Object) *fakeClient {
	c := &fakeClient{
		objects:  make(map[string]*objects.Object),
		states:   make(map[string]*objects.State),
		history:  make(map[string][]objects.Sample),
		handlers: make(map[int]StateHandler),
	}
	for _, o := range objs {
		c.objects[o.ID] = o
	}
	return c
}

func (c *fakeClient) GetObject(_ context.Context, id string) (*objects.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getCalls++
	obj, ok := c.objects[id]
	if !ok {
		return nil, objects.ErrNotFound
	}
	return obj, nil
}

func (c *fakeClient) GetObjectsByID(_ context.Context, ids []string) (map[string]*objects.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchCalls++
	if c.batchErr != nil {
		return nil, c.batchErr
	}
	out := make(map[string]*objects.Object)
	for _, id := range ids {
		if obj, ok := c.objects[id]; ok {
			out[id] = obj
		}
	}
	return out, nil
}

func (c *fakeClient) GetState(_ context.Context, id string) (*objects.State, error) {
	c.mu.Lock()
	st, ok := c.states[id]
	hook := c.afterGetState
	c.mu.Unlock()
	if hook != nil {
		defer hook(id)
	}
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (c *fakeClient) GetHistory(ctx context.Context, id string, _ HistoryQuery) ([]objects.Sample, error) {
	c.mu.Lock()
	c.historyCalls++
	gate, started := c.historyGate, c.historyStarted
	samples, err := c.history[id], c.histErr
	c.mu.Unlock()

	if started != nil {
		started <- id
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return samples, err
}

func (c *fakeClient) SetState(_ context.Context, id string, val any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, written{id: id, val: val})
	return nil
}

func (c *fakeClient) SubscribeStates(_ []string, fn StateHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.nextHandler
	c.nextHandler++
	c.handlers[n] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, n)
	}
}

// push delivers a live update to every subscriber.
func (c *fakeClient) push(id string, st objects.State) {
	c.mu.Lock()
	handlers := make([]StateHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(id, st)
	}
}

func (c *fakeClient) counts() (batch, history int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batchCalls, c.historyCalls
}

func (c *fakeClient) sent() []written {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]written(nil), c.writes...)
}

func (c *fakeClient) subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

type fakeJournal struct {
	mu     sync.Mutex
	writes []Write
}

func (j *fakeJournal) Record(_ context.Context, w Write) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.writes = append(j.writes, w)
	return nil
}

func (j *fakeJournal) all() []Write {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Write(nil), j.writes...)
}

var errBoom = errors.New("boom")

func ptr(f float64) *float64 { return &f }

func state(id string, valueType objects.ValueType) *objects.Object {
	return &objects.Object{
		ID:   id,
		Type: objects.TypeState,
		Common: objects.Common{
			Name: objects.PlainText(id),
			Type: valueType,
		},
	}
}

func startBinding(t *testing.T, cfg Config, client *fakeClient, opts Options) *Binding {
	t.Helper()
	b := New(cfg, client, opts)
	b.Start(context.Background())
	t.Cleanup(func() { b.Close() })
	return b
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
