package telemetry

import "errors"

var (
	// ErrDataSourceUnavailable is returned when the time-series or relational store cannot be read.
	ErrDataSourceUnavailable = errors.New("telemetry: data source unavailable")
	// ErrInvalidExclusion is returned when a soft delete names no sensors.
	ErrInvalidExclusion = errors.New("telemetry: invalid exclusion request")
)
