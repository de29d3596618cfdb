package errgroup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	libLog "github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/runtime"
)

// ErrPanicRecovered is returned when a goroutine in the group panics.
var ErrPanicRecovered = errors.New("errgroup: panic recovered")

// Group manages a set of goroutines that share a cancellation context.
// The first error returned by any goroutine cancels the group's context
// and is returned by Wait. Subsequent errors are discarded.
type Group struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
	logger  libLog.Logger
}

// SetLogger sets an optional logger for panic recovery observability.
func (grp *Group) SetLogger(logger libLog.Logger) {
	if grp == nil {
		return
	}

	grp.logger = logger
}

// effectiveCtx returns the group's context, falling back to
// context.Background() for zero-value Groups not created via WithContext.
func (grp *Group) effectiveCtx() context.Context {
	if grp.ctx != nil {
		return grp.ctx
	}

	return context.Background()
}

// WithContext returns a new Group and a derived context.Context.
// The derived context is canceled when the first goroutine in the Group
// returns a non-nil error or when Wait returns, whichever occurs first.
func WithContext(ctx context.Context) (*Group, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{ctx: ctx, cancel: cancel}, ctx
}

// Go starts a new goroutine in the Group. The first non-nil error returned
// by a goroutine is recorded and triggers cancellation of the group context.
// A panic in fn is recovered, logged, and recorded as ErrPanicRecovered.
func (grp *Group) Go(fn func() error) {
	grp.wg.Add(1)

	go func() {
		defer grp.wg.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				runtime.HandlePanicValue(grp.effectiveCtx(), grp.logger, recovered, "errgroup", "group.Go")

				grp.errOnce.Do(func() {
					grp.err = fmt.Errorf("%w: %v", ErrPanicRecovered, recovered)
					if grp.cancel != nil {
						grp.cancel()
					}
				})
			}
		}()

		if err := fn(); err != nil {
			grp.errOnce.Do(func() {
				grp.err = err
				if grp.cancel != nil {
					grp.cancel()
				}
			})
		}
	}()
}

// Wait blocks until all goroutines in the Group have completed.
// It cancels the group context after all goroutines finish and returns
// the first non-nil error (if any) recorded by Go.
func (grp *Group) Wait() error {
	grp.wg.Wait()

	if grp.cancel != nil {
		grp.cancel()
	}

	return grp.err
}
