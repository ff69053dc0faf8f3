package questauth

import "sync/atomic"

// delivery carries the single terminal result of a logical call. The first
// deliver wins and runs onWin before the value becomes visible; later calls
// are dropped and report false.
type delivery[T any] struct {
	taken atomic.Bool
	ch    chan T
}

func newDelivery[T any]() *delivery[T] {
	return &delivery[T]{ch: make(chan T, 1)}
}

func (d *delivery[T]) deliver(v T, onWin func(T)) bool {
	if !d.taken.CompareAndSwap(false, true) {
		return false
	}
	if onWin != nil {
		onWin(v)
	}
	d.ch <- v
	return true
}

func (d *delivery[T]) done() <-chan T {
	return d.ch
}
