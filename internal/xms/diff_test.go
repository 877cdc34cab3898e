package xms

import (
	"reflect"
	"testing"
)

func snap(ids ...int64) *Snapshot {
	s := &Snapshot{IDs: map[int64]struct{}{}, Read: map[int64]struct{}{}}
	for _, id := range ids {
		s.IDs[id] = struct{}{}
	}
	return s
}

func TestDiffSnapshots(t *testing.T) {
	old := snap(1, 2, 3)
	cur := snap(2, 3, 4)

	d := DiffSnapshots(old, cur)
	if !reflect.DeepEqual(d.Deleted, []int64{1}) {
		t.Errorf("deleted = %v, want [1]", d.Deleted)
	}
	if !reflect.DeepEqual(d.New, []int64{4}) {
		t.Errorf("new = %v, want [4]", d.New)
	}
}

func TestDiffSnapshotsEmpty(t *testing.T) {
	d := DiffSnapshots(snap(1, 2), snap(1, 2))
	if len(d.Deleted) != 0 || len(d.New) != 0 {
		t.Errorf("identical snapshots should diff empty, got %+v", d)
	}
}

func TestDiffSnapshotsSorted(t *testing.T) {
	d := DiffSnapshots(snap(9, 5, 7), snap(4, 2, 8))
	if !reflect.DeepEqual(d.Deleted, []int64{5, 7, 9}) {
		t.Errorf("deleted = %v, want sorted [5 7 9]", d.Deleted)
	}
	if !reflect.DeepEqual(d.New, []int64{2, 4, 8}) {
		t.Errorf("new = %v, want sorted [2 4 8]", d.New)
	}
}

func TestReadChanges(t *testing.T) {
	old := snap(1, 2, 3)
	old.Read[1] = struct{}{}
	cur := snap(1, 2, 3)
	cur.Read[1] = struct{}{}
	cur.Read[3] = struct{}{}

	got := ReadChanges(old, cur)
	if !reflect.DeepEqual(got, []int64{3}) {
		t.Errorf("read changes = %v, want [3]", got)
	}
}

func TestCompositeIDs(t *testing.T) {
	id := ComposeMmsID(42)
	if !IsMms(id) {
		t.Error("composed mms id should report IsMms")
	}
	if IsMms(42) {
		t.Error("plain sms id should not report IsMms")
	}
	if RowID(id) != 42 {
		t.Errorf("RowID = %d, want 42", RowID(id))
	}
}
