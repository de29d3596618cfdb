package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph/log"
)

// Policy decides what happens to the process after a panic is recovered.
type Policy uint8

const (
	// KeepRunning logs the panic with its stack and lets the goroutine die
	// without taking the process down. This is the default for long-lived
	// background loops such as the relay worker and the outbox listener.
	KeepRunning Policy = iota

	// CrashProcess re-panics after logging so the process terminates. Use it
	// when continuing with possibly corrupted state is worse than a restart.
	CrashProcess
)

// RecoverAndLog recovers a panic in the deferring goroutine and logs it with
// the stack trace. Shorthand for RecoverWithPolicy with KeepRunning.
func RecoverAndLog(logger log.Logger, name string) {
	recoverImpl(context.Background(), logger, "", name, KeepRunning, recover())
}

// RecoverWithPolicy recovers a panic in the deferring goroutine, logs it,
// and applies the given policy.
//
// Must be invoked directly in a defer statement:
//
//	defer runtime.RecoverWithPolicy(logger, "relay-worker", runtime.KeepRunning)
func RecoverWithPolicy(logger log.Logger, name string, policy Policy) {
	recoverImpl(context.Background(), logger, "", name, policy, recover())
}

// RecoverWithPolicyAndContext is RecoverWithPolicy with a context for log
// correlation and a component label.
func RecoverWithPolicyAndContext(ctx context.Context, logger log.Logger, component, name string, policy Policy) {
	recoverImpl(ctx, logger, component, name, policy, recover())
}

func recoverImpl(ctx context.Context, logger log.Logger, component, name string, policy Policy, recovered any) {
	if recovered == nil {
		return
	}

	stack := debug.Stack()
	logPanicWithStack(ctx, logger, component, name, recovered, stack)
	recordPanic(ctx, component, name)

	if policy == CrashProcess {
		panic(recovered)
	}
}

// HandlePanicValue reports an already-recovered panic value: logs it with
// the current stack and counts it. For callers that run their own recover()
// because they need the recovered value, such as the errgroup package.
func HandlePanicValue(ctx context.Context, logger log.Logger, value any, component, name string) {
	if value == nil {
		return
	}

	logPanicWithStack(ctx, logger, component, name, value, debug.Stack())
	recordPanic(ctx, component, name)
}

// SafeGo runs fn in a new goroutine, recovering and logging any panic
// instead of crashing the process.
func SafeGo(logger log.Logger, name string, fn func()) {
	go func() {
		defer RecoverWithPolicy(logger, name, KeepRunning)

		fn()
	}()
}

// SafeGoWithContext runs fn in a new goroutine with the given context,
// recovering and logging any panic.
func SafeGoWithContext(ctx context.Context, logger log.Logger, name string, fn func(ctx context.Context)) {
	SafeGoWithContextAndComponent(ctx, logger, "", name, KeepRunning, fn)
}

// SafeGoWithContextAndComponent runs fn in a new goroutine, recovering
// panics under the given policy and tagging logs with a component label.
func SafeGoWithContextAndComponent(ctx context.Context, logger log.Logger, component, name string, policy Policy, fn func(ctx context.Context)) {
	go func() {
		defer RecoverWithPolicyAndContext(ctx, logger, component, name, policy)

		fn(ctx)
	}()
}

// logPanicWithStack reports a recovered panic value with its stack trace.
// Tolerates a nil logger so recovery never panics itself.
func logPanicWithStack(ctx context.Context, logger log.Logger, component, name string, value any, stack []byte) {
	if logger == nil {
		return
	}

	fields := []log.Field{
		log.String("goroutine", name),
		log.String("panic", fmt.Sprintf("%v", value)),
		log.String("stack", string(stack)),
	}

	if component != "" {
		fields = append(fields, log.String("component", component))
	}

	logger.Log(ctx, log.LevelError, "panic recovered", fields...)
}
