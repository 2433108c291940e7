package journal

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
)

type Kind string

const (
	KindImpact   Kind = "impact"
	KindApplied  Kind = "applied"
	KindSkipped  Kind = "skipped"
	KindDetached Kind = "detached"
	KindCollapse Kind = "collapse"
)

// Event is a destruction event written as one journal line.
type Event struct {
	Time         time.Time   `json:"time"`
	Kind         Kind        `json:"kind"`
	Destructible string      `json:"destructible"`
	RequestID    uint32      `json:"request_id,omitempty"`
	Chunk        *int        `json:"chunk,omitempty"`
	Location     *mgl64.Vec3 `json:"location,omitempty"`
	Radius       float64     `json:"radius,omitempty"`
	Cells        int         `json:"cells,omitempty"`
	Mass         float64     `json:"mass,omitempty"`
	Triangles    int         `json:"triangles,omitempty"`
}

type Writer interface {
	Write(v any) error
}

// Journal writes recorded events from a background goroutine.
type Journal struct {
	writer Writer
	events chan Event
}

// New creates a journal buffering up to bufferSize events.
func New(w Writer, bufferSize int) *Journal {
	return &Journal{
		writer: w,
		events: make(chan Event, bufferSize),
	}
}

// Record queues an event. It never blocks: events are dropped when the
// buffer is full. A nil journal drops every event.
func (j *Journal) Record(e Event) {
	if j == nil {
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	select {
	case j.events <- e:
	default:
		instrumentDrop()
	}
}

// Handle writes queued events until ctx is done, then writes what is left.
func (j *Journal) Handle(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			j.flush()
			return

		case e := <-j.events:
			j.write(e)
		}
	}
}

func (j *Journal) flush() {
	for {
		select {
		case e := <-j.events:
			j.write(e)
		default:
			return
		}
	}
}

func (j *Journal) write(e Event) {
	if err := j.writer.Write(e); err != nil {
		logs.Warn(errors.New("writing journal event failed").
			WithTag("kind", e.Kind).
			WithTag("destructible", e.Destructible).
			Wrap(err))
		instrumentWrite(e.Kind, err)
		return
	}
	instrumentWrite(e.Kind, nil)
}

// IntPtr returns a pointer to v, for optional event fields.
func IntPtr(v int) *int {
	return &v
}
