package store

import "testing"

func TestJournalRollbackReverseOrder(t *testing.T) {
	j := NewJournal()
	var order []int
	j.Record(func() { order = append(order, 1) })
	j.Record(func() { order = append(order, 2) })
	j.Record(func() { order = append(order, 3) })

	if j.Len() != 3 {
		t.Fatalf("len = %d, want 3", j.Len())
	}

	j.Rollback()

	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Errorf("rollback order = %v, want [3 2 1]", order)
	}
	if j.Len() != 0 {
		t.Errorf("len after rollback = %d, want 0", j.Len())
	}
}

func TestJournalCommitDiscardsUndos(t *testing.T) {
	j := NewJournal()
	ran := false
	j.Record(func() { ran = true })

	j.Commit()
	j.Rollback()

	if ran {
		t.Error("undo ran after commit")
	}
}

func TestJournalIgnoresNilUndo(t *testing.T) {
	j := NewJournal()
	j.Record(nil)
	if j.Len() != 0 {
		t.Errorf("len = %d, want 0", j.Len())
	}
	j.Rollback()
}
