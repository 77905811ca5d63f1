package binding

import (
	"context"
	"time"

	"github.com/dokzlo13/visbind/internal/objects"
)

// ObjectReader reads object metadata. GetObject returns objects.ErrNotFound
// for unknown identifiers; GetObjectsByID omits them from the result.
type ObjectReader interface {
	GetObject(ctx context.Context, id string) (*objects.Object, error)
	GetObjectsByID(ctx context.Context, ids []string) (map[string]*objects.Object, error)
}

// StateReader reads the live value of a state. A nil state means absent.
type StateReader interface {
	GetState(ctx context.Context, id string) (*objects.State, error)
}

// HistoryQuery selects an aggregated window of samples.
type HistoryQuery struct {
	Instance  string
	Start     time.Time
	End       time.Time
	Step      time.Duration
	Aggregate string
}

// HistoryReader reads stored samples ordered by time.
type HistoryReader interface {
	GetHistory(ctx context.Context, id string, q HistoryQuery) ([]objects.Sample, error)
}

// Writer submits a value to a state. It returns once the command has been
// accepted; the resulting value arrives later through the live stream.
type Writer interface {
	SetState(ctx context.Context, id string, val any) error
}

// StateHandler receives live value changes.
type StateHandler func(id string, st objects.State)

// Subscriber delivers live value changes for a set of identifiers, in
// arrival order. The returned function cancels the subscription.
type Subscriber interface {
	SubscribeStates(ids []string, fn StateHandler) (unsubscribe func())
}

// Client is the full capability set a Binding needs from the object store.
type Client interface {
	ObjectReader
	StateReader
	HistoryReader
	Writer
	Subscriber
}

// WriteMode tells how a write was produced.
type WriteMode string

const (
	// WriteThrough is a discrete control writing immediately.
	WriteThrough WriteMode = "write_through"
	// WriteCommit is the single write closing an adjust session.
	WriteCommit WriteMode = "commit"
)

// Write describes one submitted command.
type Write struct {
	Mode      WriteMode
	BindingID string
	Owner     string
	Key       string
	OID       string
	Value     any
	SessionID string
	At        time.Time
}

// Journal records submitted writes.
type Journal interface {
	Record(ctx context.Context, w Write) error
}
