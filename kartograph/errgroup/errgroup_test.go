//go:build unit

package errgroup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLoop = errors.New("loop failed")

func TestWaitReturnsNilWhenAllSucceed(t *testing.T) {
	t.Parallel()

	grp, _ := WithContext(context.Background())

	var ran atomic.Int32

	for range 3 {
		grp.Go(func() error {
			ran.Add(1)
			return nil
		})
	}

	require.NoError(t, grp.Wait())
	assert.Equal(t, int32(3), ran.Load())
}

func TestFirstErrorCancelsGroupContext(t *testing.T) {
	t.Parallel()

	grp, ctx := WithContext(context.Background())

	grp.Go(func() error {
		return errLoop
	})

	grp.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("sibling was not canceled")
		}
	})

	require.ErrorIs(t, grp.Wait(), errLoop)
}

func TestOnlyFirstErrorIsKept(t *testing.T) {
	t.Parallel()

	grp, _ := WithContext(context.Background())

	first := errors.New("first")
	second := errors.New("second")
	release := make(chan struct{})

	grp.Go(func() error {
		return first
	})
	grp.Go(func() error {
		<-release
		return second
	})

	// Let the first goroutine record its error before releasing the second.
	time.Sleep(50 * time.Millisecond)
	close(release)

	err := grp.Wait()
	require.ErrorIs(t, err, first)
	require.NotErrorIs(t, err, second)
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()

	grp, _ := WithContext(context.Background())

	grp.Go(func() error {
		panic("loop blew up")
	})

	err := grp.Wait()
	require.ErrorIs(t, err, ErrPanicRecovered)
	assert.Contains(t, err.Error(), "loop blew up")
}

func TestZeroValueGroupIsUsable(t *testing.T) {
	t.Parallel()

	var grp Group

	grp.Go(func() error {
		return nil
	})

	require.NoError(t, grp.Wait())
}

func TestWaitCancelsContextAfterCompletion(t *testing.T) {
	t.Parallel()

	grp, ctx := WithContext(context.Background())

	grp.Go(func() error { return nil })

	require.NoError(t, grp.Wait())

	select {
	case <-ctx.Done():
	default:
		t.Fatal("group context should be canceled after Wait")
	}
}
