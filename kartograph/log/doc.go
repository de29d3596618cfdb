// Package log defines the logging interface and typed logging fields used
// across kartograph.
//
// Adapters (such as the zap package) implement Logger so relay, projection
// and graph components can keep logging calls consistent across backends.
package log
