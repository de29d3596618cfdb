// Package cron parses standard 5-field cron expressions and computes next
// run times. The outbox monitor uses it to schedule queue-depth sampling.
//
// It supports wildcards, ranges, steps, lists, and three-letter month and
// day-of-week names.
package cron
