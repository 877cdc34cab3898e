package sync

import (
	"context"
	"testing"
	"time"

	"github.com/nlebec/cmsync/internal/bus"
	"github.com/nlebec/cmsync/internal/imap"
	"github.com/nlebec/cmsync/internal/store"
	"go.uber.org/zap"
)

func testScheduler(t *testing.T) (*Scheduler, *store.DB, *imap.Memory, *bus.Bus) {
	t.Helper()
	db := testDB(t)
	remote := imap.NewMemory()
	b := bus.New()
	e := NewEngine(db, remote, b, zap.NewNop())
	s := NewScheduler(e, db, remote, "Default", time.Hour, b, zap.NewNop())
	return s, db, remote, b
}

func TestSchedulerCoalescesDuplicateRequests(t *testing.T) {
	s, _, _, _ := testScheduler(t)

	s.Request(Scope{Kind: ScopeAll})
	s.Request(Scope{Kind: ScopeAll})
	s.Request(Scope{Kind: ScopeOneToOne, Contact: "+33601020304"})
	s.Request(Scope{Kind: ScopeOneToOne, Contact: "+33601020304"})

	s.mu.Lock()
	n := len(s.queue)
	s.mu.Unlock()
	if n != 2 {
		t.Fatalf("queue length = %d, want 2 distinct scopes", n)
	}
}

func TestSchedulerPublishesOneCompletionPerScope(t *testing.T) {
	s, db, _, b := testScheduler(t)
	ch, unsub := b.Subscribe(bus.KindSyncCompleted, 8)
	defer unsub()

	stageLocal(t, db, "m1", "hello")
	scope := Scope{Kind: ScopeOneToOne, Contact: "+33601020304"}
	s.Request(scope)
	s.drain(context.Background())

	evt := <-ch
	res, ok := evt.Payload.(Result)
	if !ok {
		t.Fatalf("payload = %T", evt.Payload)
	}
	if res.Scope != scope || !res.Success {
		t.Errorf("result = %+v", res)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra completion %+v", extra.Payload)
	default:
	}

	o, err := db.GetCmsObject(store.TypeSms, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if o.PushStatus != store.Pushed {
		t.Errorf("message not pushed by scoped sync: %+v", o)
	}
}

func TestSchedulerFullPassCoversRemoteOnlyFolders(t *testing.T) {
	s, db, remote, b := testScheduler(t)
	ch, unsub := b.Subscribe(bus.KindSyncCompleted, 8)
	defer unsub()

	// A conversation that exists only on the server, started elsewhere.
	remote.AddRemote("Default/+33605060708", remotePayload(t, "remote-1", "new device who dis"))
	// A folder outside the root must be ignored.
	remote.AddRemote("INBOX", []byte("not ours"))

	s.Request(Scope{Kind: ScopeAll})
	s.drain(context.Background())

	evt := <-ch
	if res := evt.Payload.(Result); !res.Success {
		t.Fatalf("full pass failed: %+v", res)
	}
	m, err := db.GetMessage("remote-1")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Error("remote-only conversation not imported")
	}
	if o, _ := db.GetCmsObjectByUID("INBOX", 1); o != nil {
		t.Error("folder outside the root was synced")
	}
}

func TestSchedulerFullPassPurgesFinalizedDeletes(t *testing.T) {
	s, db, _, _ := testScheduler(t)

	stageLocal(t, db, "m1", "soon gone")
	if err := db.MarkDeleted(store.TypeSms, "m1", store.DeleteReportRequested); err != nil {
		t.Fatal(err)
	}

	s.Request(Scope{Kind: ScopeAll})
	s.drain(context.Background())

	// The pass finalized the delete and the purge dropped the tombstone.
	o, err := db.GetCmsObject(store.TypeSms, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if o != nil {
		t.Errorf("tombstone survived purge: %+v", o)
	}
}

func TestSchedulerReportsFailure(t *testing.T) {
	s, db, remote, b := testScheduler(t)
	ch, unsub := b.Subscribe(bus.KindSyncCompleted, 8)
	defer unsub()

	stageLocal(t, db, "m1", "x")
	remote.FailAppend = true

	// Append failures are retried, not fatal; the pass itself succeeds.
	s.Request(Scope{Kind: ScopeOneToOne, Contact: "+33601020304"})
	s.drain(context.Background())
	if res := (<-ch).Payload.(Result); !res.Success {
		t.Errorf("append failure must not fail the pass: %+v", res)
	}

	// A dead transport does fail it.
	s.engine.remote = failingTransport{}
	s.Request(Scope{Kind: ScopeOneToOne, Contact: "+33601020304"})
	s.drain(context.Background())
	if res := (<-ch).Payload.(Result); res.Success {
		t.Errorf("transport failure must fail the pass: %+v", res)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	s, db, _, b := testScheduler(t)
	ch, unsub := b.Subscribe(bus.KindSyncCompleted, 8)
	defer unsub()

	stageLocal(t, db, "m1", "hello")
	s.Start(context.Background())
	defer s.Stop()

	// Start triggers an initial full pass.
	select {
	case evt := <-ch:
		if res := evt.Payload.(Result); !res.Success {
			t.Errorf("initial pass failed: %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no completion event from initial pass")
	}
}

type failingTransport struct{}

func (failingTransport) Select(context.Context, string) (*imap.SelectInfo, error) {
	return nil, context.DeadlineExceeded
}
func (failingTransport) FetchChanged(context.Context, string, uint64) ([]imap.MessageInfo, error) {
	return nil, context.DeadlineExceeded
}
func (failingTransport) FetchBody(context.Context, string, uint32) ([]byte, error) {
	return nil, context.DeadlineExceeded
}
func (failingTransport) Append(context.Context, string, []imap.Flag, []byte) (uint32, error) {
	return 0, context.DeadlineExceeded
}
func (failingTransport) StoreFlags(context.Context, string, uint32, []imap.Flag) error {
	return context.DeadlineExceeded
}
func (failingTransport) List(context.Context) ([]string, error) {
	return nil, context.DeadlineExceeded
}
func (failingTransport) Close() error { return nil }
