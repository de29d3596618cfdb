// Package errgroup coordinates goroutines that share a cancellation context.
//
// The relay runs its worker, listener and monitor loops in one Group: the
// first loop error cancels the others and is returned by Wait; recovered
// panics are converted into errors.
package errgroup
