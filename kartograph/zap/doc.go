// Package zap provides the production log.Logger implementation backed by
// go.uber.org/zap, with OpenTelemetry trace correlation and an otelzap
// bridge core so log records also flow to the OTel log pipeline.
package zap
