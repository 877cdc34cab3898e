package store

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; run it again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	db := testDB(t)

	m := &Message{
		MessageID: "m1", ChatID: "+33601020304", Contact: "+33601020304",
		Direction: Incoming, Type: TypeSms, Body: "hello", State: StateReceived, Timestamp: 1000,
	}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("+33601020304", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent)", len(msgs))
	}
	if msgs[0].Body != "hello" {
		t.Errorf("body = %q", msgs[0].Body)
	}
}

func TestUpsertMessageNeverUnreads(t *testing.T) {
	db := testDB(t)

	m := &Message{MessageID: "m1", ChatID: "c", Direction: Incoming, Type: TypeSms, State: StateReceived, Read: Read, Timestamp: 1}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	// Re-apply with an older unread snapshot.
	m.Read = Unread
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetMessage("m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Read != Read {
		t.Error("read flag reverted to unread")
	}
}

func TestGetMessageMissing(t *testing.T) {
	db := testDB(t)
	m, err := db.GetMessage("nope")
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Errorf("got %v, want nil", m)
	}
}

func TestPartsRoundTrip(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{MessageID: "m1", ChatID: "c", Type: TypeMms, State: StateReceived, Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	parts := []Part{
		{MimeType: "text/plain", Text: "caption"},
		{MimeType: "image/jpeg", FileName: "photo.jpg", Blob: []byte{0xff, 0xd8}},
	}
	if err := db.ReplaceParts("m1", parts); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetParts("m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d parts, want 2", len(got))
	}
	if got[0].MimeType != "text/plain" || got[0].Seq != 0 {
		t.Errorf("part 0 = %+v", got[0])
	}
	if got[1].FileName != "photo.jpg" {
		t.Errorf("part 1 = %+v", got[1])
	}
}

func TestDeleteMessageCascadesParts(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{MessageID: "m1", ChatID: "c", Type: TypeMms, State: StateReceived, Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceParts("m1", []Part{{MimeType: "text/plain", Text: "x"}}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteMessage("m1"); err != nil {
		t.Fatal(err)
	}

	parts, err := db.GetParts("m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 0 {
		t.Errorf("parts not cascaded: %v", parts)
	}
}

func TestUpsertCmsObjectIdempotent(t *testing.T) {
	db := testDB(t)

	o := &CmsObject{Folder: "Default/+336", Type: TypeSms, MessageID: "m1", PushStatus: PushRequested}
	if err := db.UpsertCmsObject(o); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertCmsObject(o); err != nil {
		t.Fatal(err)
	}

	objs, err := db.ListCmsObjects("Default/+336")
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 1 {
		t.Fatalf("got %d objects, want 1", len(objs))
	}
}

func TestForwardOnlyTransitions(t *testing.T) {
	db := testDB(t)

	o := &CmsObject{Folder: "f", Type: TypeSms, MessageID: "m1"}
	if err := db.UpsertCmsObject(o); err != nil {
		t.Fatal(err)
	}

	// Forward: NotDeleted -> DeleteReportRequested -> Deleted.
	if err := db.MarkDeleted(TypeSms, "m1", DeleteReportRequested); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkDeleted(TypeSms, "m1", Deleted); err != nil {
		t.Fatal(err)
	}
	// Backward attempts are silent no-ops.
	if err := db.MarkDeleted(TypeSms, "m1", DeleteReportRequested); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetCmsObject(TypeSms, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.DeleteStatus != Deleted {
		t.Errorf("delete status = %v, want Deleted", got.DeleteStatus)
	}

	// Same discipline for read status.
	if err := db.MarkRead(TypeSms, "m1", RemoteRead); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkRead(TypeSms, "m1", ReadReportRequested); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetCmsObject(TypeSms, "m1")
	if got.ReadStatus != RemoteRead {
		t.Errorf("read status = %v, want RemoteRead", got.ReadStatus)
	}
}

func TestUpsertCmsObjectNeverRegressesStatus(t *testing.T) {
	db := testDB(t)

	o := &CmsObject{Folder: "f", Type: TypeSms, MessageID: "m1", PushStatus: Pushed, UID: 42}
	if err := db.UpsertCmsObject(o); err != nil {
		t.Fatal(err)
	}

	// Re-apply with pre-push state.
	stale := &CmsObject{Folder: "f", Type: TypeSms, MessageID: "m1", PushStatus: NotPushed}
	if err := db.UpsertCmsObject(stale); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetCmsObject(TypeSms, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.PushStatus != Pushed {
		t.Errorf("push status regressed to %v", got.PushStatus)
	}
	if got.UID != 42 {
		t.Errorf("uid lost: %d", got.UID)
	}
}

func TestMarkPushedAssignsUID(t *testing.T) {
	db := testDB(t)

	o := &CmsObject{Folder: "f", Type: TypeSms, MessageID: "m1", PushStatus: PushRequested}
	if err := db.UpsertCmsObject(o); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkPushed(TypeSms, "m1", 7); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetCmsObjectByUID("f", 7)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.PushStatus != Pushed {
		t.Fatalf("got %+v, want pushed with uid 7", got)
	}
}

func TestGetCmsObjectsByNativeID(t *testing.T) {
	db := testDB(t)

	// One native MMS fanned out to two contacts: same native id, distinct
	// message ids.
	native := sql.NullInt64{Int64: 99, Valid: true}
	for _, id := range []string{"m-a", "m-b"} {
		o := &CmsObject{Folder: "Default/" + id, Type: TypeMms, MessageID: id, NativeID: native}
		if err := db.UpsertCmsObject(o); err != nil {
			t.Fatal(err)
		}
	}

	objs, err := db.GetCmsObjectsByNativeID(99)
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 2 {
		t.Fatalf("got %d objects, want 2", len(objs))
	}
}

func TestPurgeRemovesOnlyDeleted(t *testing.T) {
	db := testDB(t)

	objs := []CmsObject{
		{Folder: "f", Type: TypeSms, MessageID: "keep"},
		{Folder: "f", Type: TypeSms, MessageID: "pending", DeleteStatus: DeleteReportRequested},
		{Folder: "f", Type: TypeSms, MessageID: "gone", DeleteStatus: Deleted},
	}
	for i := range objs {
		if err := db.UpsertCmsObject(&objs[i]); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.Purge()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}

	left, err := db.ListCmsObjects("f")
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 2 {
		t.Errorf("got %d objects after purge, want 2", len(left))
	}
}

func TestModSeqCheckpoint(t *testing.T) {
	db := testDB(t)

	modseq, err := db.GetModSeq("f")
	if err != nil {
		t.Fatal(err)
	}
	if modseq != 0 {
		t.Errorf("fresh folder modseq = %d, want 0", modseq)
	}

	if err := db.SetModSeq("f", 1234); err != nil {
		t.Fatal(err)
	}
	if err := db.SetModSeq("f", 5678); err != nil {
		t.Fatal(err)
	}

	modseq, err = db.GetModSeq("f")
	if err != nil {
		t.Fatal(err)
	}
	if modseq != 5678 {
		t.Errorf("modseq = %d, want 5678", modseq)
	}
}

func TestResetFolderForcesFullSync(t *testing.T) {
	db := testDB(t)

	o := &CmsObject{Folder: "f", Type: TypeSms, MessageID: "m1", UID: 10, PushStatus: Pushed}
	if err := db.UpsertCmsObject(o); err != nil {
		t.Fatal(err)
	}
	if err := db.SetModSeq("f", 100); err != nil {
		t.Fatal(err)
	}

	if err := db.ResetFolder("f"); err != nil {
		t.Fatal(err)
	}

	modseq, _ := db.GetModSeq("f")
	if modseq != 0 {
		t.Errorf("modseq = %d, want 0 after reset", modseq)
	}
	got, _ := db.GetCmsObject(TypeSms, "m1")
	if got.UID != 0 || got.PushStatus != PushRequested {
		t.Errorf("object not reset: %+v", got)
	}
}

func TestMarkMessageReadForwardOnly(t *testing.T) {
	db := testDB(t)

	m := &Message{MessageID: "m1", ChatID: "c", Contact: "c", Type: TypeSms, Timestamp: 1}
	if err := db.UpsertMessage(m); err != nil {
		t.Fatal(err)
	}

	if err := db.MarkMessageRead("m1"); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetMessage("m1")
	if got.Read != Read {
		t.Errorf("read = %d, want Read", got.Read)
	}

	// Marking again is a no-op, not an error.
	if err := db.MarkMessageRead("m1"); err != nil {
		t.Fatal(err)
	}
}

func TestListMessageIDsOrderedByTimestamp(t *testing.T) {
	db := testDB(t)

	for i, id := range []string{"newest", "oldest", "middle"} {
		ts := []int64{300, 100, 200}[i]
		m := &Message{MessageID: id, ChatID: "c", Contact: "c", Type: TypeSms, Timestamp: ts}
		if err := db.UpsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}
	other := &Message{MessageID: "elsewhere", ChatID: "d", Contact: "d", Type: TypeSms, Timestamp: 50}
	if err := db.UpsertMessage(other); err != nil {
		t.Fatal(err)
	}

	ids, err := db.ListMessageIDs("c")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"oldest", "middle", "newest"}
	if len(ids) != 3 {
		t.Fatalf("ids = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}
