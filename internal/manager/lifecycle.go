package manager

import (
	"github.com/google/uuid"

	"rkllmd/internal/reqctx"
)

// lifecycle registers request contexts before any worker starts and removes
// them once the request is over.
type lifecycle struct {
	store *reqctx.Store
	newID func() string
}

func newLifecycle(store *reqctx.Store) *lifecycle {
	return &lifecycle{store: store, newID: uuid.NewString}
}

// Begin creates and registers a context under a fresh id.
func (l *lifecycle) Begin() *reqctx.Context {
	return l.store.Create(l.newID())
}

// End removes id from the store. It reports false if id was already gone.
func (l *lifecycle) End(id string) bool {
	return l.store.Delete(id)
}
