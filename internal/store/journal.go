package store

// Journal collects undo steps for an in-flight atomic unit. Mutating store
// methods return an undo closure; the caller records each one and either
// commits the unit or rolls every step back in reverse order. The caller
// must hold the relevant account lock for the whole unit.
type Journal struct {
	undos []func()
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Record appends an undo step. Nil undos are ignored.
func (j *Journal) Record(undo func()) {
	if undo == nil {
		return
	}
	j.undos = append(j.undos, undo)
}

// Rollback runs all recorded undo steps in reverse order and clears the
// journal.
func (j *Journal) Rollback() {
	for i := len(j.undos) - 1; i >= 0; i-- {
		j.undos[i]()
	}
	j.undos = nil
}

// Commit discards the undo steps, making the unit's mutations permanent.
func (j *Journal) Commit() {
	j.undos = nil
}

// Len returns the number of recorded undo steps.
func (j *Journal) Len() int {
	return len(j.undos)
}
