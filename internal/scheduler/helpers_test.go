package scheduler

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/stepfire/internal/eventlog"
	"github.com/RezaEskandarii/stepfire/internal/store/mocks"
	"github.com/rs/zerolog"
)

type recordedEvent struct {
	kind    eventlog.Kind
	label   string
	payload string
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) Log(kind eventlog.Kind, label string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: kind, label: label, payload: eventlog.Serialize(payload)})
}

func (r *recordingEvents) kinds() []eventlog.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]eventlog.Kind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.kind)
	}
	return kinds
}

func newTestScheduler(st *mocks.MockTransactionStore, opts ...Option) *Scheduler {
	return New(st, &recordingEvents{}, zerolog.Nop(), opts...)
}

func statusServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// blockingServer answers 200 once release is closed, and reports every request it receives on entered.
func blockingServer(t *testing.T) (srv *httptest.Server, entered chan struct{}, release chan struct{}) {
	t.Helper()
	entered = make(chan struct{}, 16)
	release = make(chan struct{})
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		select {
		case <-release:
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
		srv.Close()
	})
	return srv, entered, release
}

func waitDone(t *testing.T, runner *TransactionRunner) {
	t.Helper()
	select {
	case <-runner.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("runner %d did not finish", runner.ID())
	}
}

func waitEntered(t *testing.T, entered <-chan struct{}) {
	t.Helper()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the server")
	}
}
