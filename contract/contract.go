//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/omkarshukla84/klymo-client/domain"
)

// Event is one inbound frame from the matching/chat service.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v. An absent payload leaves v untouched.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Emitter sends one named event with its payload.
type Emitter interface {
	Emit(event string, payload any) error
}

// Conn is a live handle on one connection to the service.
// Close is idempotent and never waits for a server acknowledgment.
type Conn interface {
	Emitter
	Close() error
}

// Handler receives connection lifecycle callbacks.
// Callbacks for one Conn are invoked in delivery order from a single
// goroutine and are never re-entrant.
type Handler interface {
	OnConnect(conn Conn)
	OnConnectError(err error, attempt int, final bool)
	OnEvent(evt Event)
	OnDisconnect(err error)
}

// Dialer opens connections. Dial returns immediately; establishment, retries
// and every Handler callback happen on another goroutine. ctx bounds the
// lifetime of the returned connection.
type Dialer interface {
	Dial(ctx context.Context, handler Handler) (Conn, error)
}

// Fingerprinter derives the raw, unsalted device fingerprint.
type Fingerprinter interface {
	Fingerprint(ctx context.Context) (string, error)
}

type IdentityStore interface {
	GetOrCreateID(ctx context.Context) (string, error)
	GetDailyCount() (int, error)
	IncrementDailyCount() error
	IsLimitReached(limit int) (bool, error)
}

// SessionStore is the volatile, process-scoped store for the current room
// and the pending report target.
type SessionStore interface {
	SaveRoom(room domain.MatchRoom) error
	Room() (domain.MatchRoom, bool, error)
	SaveReportTarget(deviceID string) error
	ReportTarget() (string, bool, error)
	Clear() error
}

type ProfileValidator interface {
	Validate(profile domain.SessionProfile) error
}

// MetricsSource serves the admin metrics snapshot.
type MetricsSource interface {
	Metrics(ctx context.Context) (domain.Metrics, error)
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// for logging during supervision.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
