// Package gologger resolves the named loggers used across the install
// service and bridges them to go-job for queue workers.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	ServiceLoggerName = "appinstall"
	HTTPLoggerName    = "appinstall.http"
	JobsLoggerName    = "appinstall.jobs"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// HTTPLogger returns the logger the HTTP server writes request and
// lifecycle events to. It is never nil.
func HTTPLogger(provider glog.LoggerProvider) glog.Logger {
	_, logger := Resolve(HTTPLoggerName, provider, nil)
	return glog.Ensure(logger)
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the glog pair and returns the matching go-job
// bridges for queue workers.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
