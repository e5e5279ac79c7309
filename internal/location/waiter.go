// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"context"
	"slices"
)

type result[T any] struct {
	value T
	err   error
}

// waiters holds the callers blocked on the next occurrence of one kind of event. Every
// waiter is a one-slot buffered channel, so resolving never blocks. All methods must be
// called with the Manager's mutex held.
type waiters[T any] struct {
	list []chan result[T]
}

// add registers a new waiter and returns its channel.
func (w *waiters[T]) add() chan result[T] {
	ch := make(chan result[T], 1)
	w.list = append(w.list, ch)
	return ch
}

// remove withdraws ch. It returns false if ch was already resolved.
func (w *waiters[T]) remove(ch chan result[T]) bool {
	n := len(w.list)
	w.list = slices.DeleteFunc(w.list, func(c chan result[T]) bool { return c == ch })
	return len(w.list) != n
}

// resolve hands value and err to every registered waiter exactly once and clears the
// collection. It returns the number of released waiters.
func (w *waiters[T]) resolve(value T, err error) int {
	n := len(w.list)
	for _, ch := range w.list {
		ch <- result[T]{value: value, err: err}
	}
	w.list = nil
	return n
}

// has reports whether ch is still registered.
func (w *waiters[T]) has(ch chan result[T]) bool {
	return slices.Contains(w.list, ch)
}

func (w *waiters[T]) len() int {
	return len(w.list)
}

// await blocks until ch is resolved or ctx is done. On cancellation withdraw is called to
// take ch out of its collection; a result that raced the cancellation still wins.
func await[T any](ctx context.Context, ch chan result[T], withdraw func()) (T, error) {
	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		withdraw()
		select {
		case r := <-ch:
			return r.value, r.err
		default:
		}
		var zero T
		return zero, ctx.Err()
	}
}
