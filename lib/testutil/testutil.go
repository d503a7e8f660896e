package testutil

import (
	"database/sql"
	"strings"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

type EventKind string

const (
	KindBroken  EventKind = "broken"
	KindWarning EventKind = "warning"
	KindInfo    EventKind = "info"
	KindDebug   EventKind = "debug"
	KindCount   EventKind = "count"
)

type Event struct {
	Kind   EventKind
	ID     string
	Params []any
	Count  int64
}

// Param returns the value following `key` in the event params.
func (e Event) Param(key string) (any, bool) {
	for i := 0; i+1 < len(e.Params); i += 2 {
		if k, ok := e.Params[i].(string); ok && k == key {
			return e.Params[i+1], true
		}
	}
	return nil, false
}

// Recorder is a telemetry.API that keeps every report so tests can assert on
// diagnostics.
type Recorder struct {
	mutex  sync.Mutex
	events []Event
}

func (r *Recorder) add(e Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.add(Event{Kind: KindBroken, ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.add(Event{Kind: KindWarning, ID: id, Params: params})
}

func (r *Recorder) ReportInfo(msg string, params ...any) {
	r.add(Event{Kind: KindInfo, ID: msg, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.add(Event{Kind: KindDebug, ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.add(Event{Kind: KindCount, ID: id, Count: count})
}

// Events returns recorded events of the given kind whose id ends with
// `suffix`, scoped ids carry a namespace prefix.
func (r *Recorder) Events(kind EventKind, suffix string) []Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind && strings.HasSuffix(e.ID, suffix) {
			out = append(out, e)
		}
	}
	return out
}

// SetupDB opens an in-memory sqlite database with the given schema applied.
func SetupDB(t testing.TB, schema string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// every new connection to :memory: is a new database
	db.SetMaxOpenConns(1)
	_, err = db.Exec(schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
