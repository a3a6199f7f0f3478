package config

import "time"

// Defaults applied when the configuration file leaves a setting unset.
const (
	DefaultInstanceName = "_default_"

	DefaultWebBind        = "localhost:8080"
	DefaultWebWorkers     = 1
	DefaultWebTimeout     = 300
	DefaultRestartTimeout = 300 * time.Second

	DefaultWorkerConcurrency = 2
	DefaultWorkerLogLevel    = "info"
	DefaultWorkerQueues      = "default"

	DefaultUploaderHost = "localhost"
	DefaultUploaderPort = 1080

	DefaultProxyIP   = "localhost"
	DefaultProxyPort = 4002

	// Start/stop grace periods rendered into unit files. Web processes get a
	// longer stop window so in-flight requests can drain.
	DefaultWebStartTimeout = 15 * time.Second
	DefaultWebStopTimeout  = 65 * time.Second
	DefaultStartTimeout    = 10 * time.Second
	DefaultStopTimeout     = 10 * time.Second

	DefaultHandlerNameTemplate = "{name}_{process}"
)

// EnvConfigFile and EnvStateDir are the environment overrides for the
// configuration file path and state directory. Both accept colon-separated
// lists to support multi-instance operation.
const (
	EnvConfigFile = "HERD_CONFIG_FILE"
	EnvStateDir   = "HERD_STATE_DIR"
)
