package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ InstallService  = (*Service)(nil)
	_ SessionStore    = (*MemorySessionStore)(nil)
	_ MetricsRecorder = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
