package intake

import (
	"context"
	"sync"
)

// Dispatcher serializes event handling per user while letting distinct
// users proceed concurrently. Updates for one user that arrive while a
// previous one is still being processed queue up on that user's lock,
// so session read-modify-write cycles never interleave.
type Dispatcher struct {
	controller *Controller

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
	wg    sync.WaitGroup
}

// NewDispatcher creates a dispatcher in front of the controller.
func NewDispatcher(controller *Controller) *Dispatcher {
	if controller == nil {
		panic("intake: controller cannot be nil")
	}
	return &Dispatcher{
		controller: controller,
		locks:      make(map[int64]*sync.Mutex),
	}
}

// Dispatch hands the event to the controller under the user's lock.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	lock := d.userLock(ev.UserID)
	lock.Lock()
	defer lock.Unlock()
	d.controller.Handle(ctx, ev)
}

// DispatchAsync processes the event on its own goroutine so a slow
// assistant call for one user never stalls the update feed for others.
func (d *Dispatcher) DispatchAsync(ctx context.Context, ev Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Dispatch(ctx, ev)
	}()
}

// Wait blocks until all in-flight async events have been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) userLock(userID int64) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[userID] = lock
	}
	return lock
}
