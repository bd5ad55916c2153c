package tune

import (
	"github.com/emirpasic/gods/sets/treeset"

	"github.com/edoakes/tunekit/pkg/model"
)

// trialList maintains every trial of a run in launch order, with lookup by request ID.
type trialList struct {
	bySeq *treeset.Set
	byID  map[model.RequestID]*trial
}

func newTrialList() *trialList {
	return &trialList{
		bySeq: treeset.NewWith(func(a, b interface{}) int {
			t1, t2 := a.(*trial), b.(*trial)
			return t1.seq - t2.seq
		}),
		byID: make(map[model.RequestID]*trial),
	}
}

// Add inserts a trial; it returns false if the request ID is already present.
func (l *trialList) Add(t *trial) bool {
	if _, ok := l.byID[t.requestID]; ok {
		return false
	}
	l.bySeq.Add(t)
	l.byID[t.requestID] = t
	return true
}

// ByID returns the trial for a request ID.
func (l *trialList) ByID(id model.RequestID) (*trial, bool) {
	t, ok := l.byID[id]
	return t, ok
}

// Len gives the number of trials in the list.
func (l *trialList) Len() int {
	return len(l.byID)
}

// Each visits the trials in launch order.
func (l *trialList) Each(f func(t *trial)) {
	it := l.bySeq.Iterator()
	for it.Next() {
		f(it.Value().(*trial))
	}
}
