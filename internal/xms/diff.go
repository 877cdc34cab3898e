package xms

import "sort"

// Diff is the change set between two native snapshots.
type Diff struct {
	Deleted []int64
	New     []int64
}

// DiffSnapshots computes deleted = old − new and new = new − old. Results
// are sorted so processing order is deterministic; callers must apply
// deletions before imports to avoid transient duplicate-id collisions.
func DiffSnapshots(old, cur *Snapshot) Diff {
	var d Diff
	for id := range old.IDs {
		if _, ok := cur.IDs[id]; !ok {
			d.Deleted = append(d.Deleted, id)
		}
	}
	for id := range cur.IDs {
		if _, ok := old.IDs[id]; !ok {
			d.New = append(d.New, id)
		}
	}
	sort.Slice(d.Deleted, func(i, j int) bool { return d.Deleted[i] < d.Deleted[j] })
	sort.Slice(d.New, func(i, j int) bool { return d.New[i] < d.New[j] })
	return d
}

// ReadChanges returns ids read in cur but not in old, sorted.
func ReadChanges(old, cur *Snapshot) []int64 {
	var ids []int64
	for id := range cur.Read {
		if _, ok := old.Read[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
