package usecase

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// PartyLocks serializes the operations that couple a user's wallet to the
// transaction ledger: deleting a wallet races against creating a transaction
// that names its owner. Both usecases must share one instance.
type PartyLocks struct {
	locks sync.Map // uuid.UUID -> *sync.Mutex
}

func NewPartyLocks() *PartyLocks {
	return &PartyLocks{}
}

// lock acquires the per-user locks in a fixed total order, so two callers
// naming the same users in opposite roles can never deadlock.
func (l *PartyLocks) lock(ids ...uuid.UUID) (unlock func()) {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	locked := make([]*sync.Mutex, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		m, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
		mu := m.(*sync.Mutex)
		mu.Lock()
		locked = append(locked, mu)
	}

	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}
}
