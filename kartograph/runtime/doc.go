// Package runtime provides panic-safe goroutine launchers and recovery
// helpers for long-lived background loops.
//
// The relay worker, the outbox listener and the launcher all start their
// goroutines through SafeGo variants so a panic in one loop is logged with
// its stack (and counted, when metrics are initialized) instead of taking
// the process down.
package runtime
