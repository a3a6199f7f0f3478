package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Settings is the normalized `herd:` section of a configuration file.
type Settings struct {
	InstanceName   string `yaml:"instance_name"`
	ProcessManager string `yaml:"process_manager"`

	// AppRoot is the managed application's installation directory. Relative
	// paths in the configuration resolve against it, and it becomes the
	// working directory of every unit.
	AppRoot string `yaml:"app_root"`

	// BinDir is prepended to commands so service binaries resolve without
	// relying on the supervisor's PATH.
	BinDir string `yaml:"bin_dir"`

	LogDir  string `yaml:"log_dir"`
	DataDir string `yaml:"data_dir"`
	Umask   string `yaml:"umask"`

	Web      WebList          `yaml:"web"`
	Worker   WorkerSettings   `yaml:"worker"`
	Uploader UploaderSettings `yaml:"uploader"`
	Proxy    ProxySettings    `yaml:"proxy"`

	Handlers map[string]HandlerSettings `yaml:"handlers"`

	// RoutingFile points at an external job-routing configuration whose
	// handler processes become additional standalone service instances.
	RoutingFile string `yaml:"routing_file"`
}

// AppConfig is the subset of the managed application's own `app:` section
// that herdctl needs.
type AppConfig struct {
	ExternalURL string `yaml:"external_url"`
	URLPrefix   string `yaml:"url_prefix"`
}

// WebSettings configures one web server replica.
type WebSettings struct {
	Enable         *bool             `yaml:"enable"`
	Bind           string            `yaml:"bind"`
	Workers        int               `yaml:"workers"`
	Timeout        int               `yaml:"timeout"`
	Preload        *bool             `yaml:"preload"`
	RestartTimeout int               `yaml:"restart_timeout"`
	ExtraArgs      string            `yaml:"extra_args"`
	Environment    map[string]string `yaml:"environment"`
}

// WebList accepts either a single mapping or a sequence of mappings for the
// `web:` key. The sequence form declares one replica per entry.
type WebList []WebSettings

// UnmarshalYAML implements list-or-mapping decoding for the web section.
func (w *WebList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		var single WebSettings
		if err := value.Decode(&single); err != nil {
			return err
		}
		*w = WebList{single}
		return nil
	case yaml.SequenceNode:
		var many []WebSettings
		if err := value.Decode(&many); err != nil {
			return err
		}
		*w = WebList(many)
		return nil
	default:
		return fmt.Errorf("web: expected mapping or sequence, got %v", value.Kind)
	}
}

// WorkerSettings configures the background task worker and its optional
// periodic scheduler.
type WorkerSettings struct {
	Enable          *bool             `yaml:"enable"`
	EnableScheduler *bool             `yaml:"enable_scheduler"`
	Concurrency     int               `yaml:"concurrency"`
	LogLevel        string            `yaml:"loglevel"`
	Queues          string            `yaml:"queues"`
	ExtraArgs       string            `yaml:"extra_args"`
	Environment     map[string]string `yaml:"environment"`
}

// UploaderSettings configures the upload daemon.
type UploaderSettings struct {
	Enable      bool              `yaml:"enable"`
	Host        string            `yaml:"host"`
	Port        int               `yaml:"port"`
	UploadDir   string            `yaml:"upload_dir"`
	ExtraArgs   string            `yaml:"extra_args"`
	Environment map[string]string `yaml:"environment"`
}

// ProxySettings configures the auxiliary proxy.
type ProxySettings struct {
	Enable      bool              `yaml:"enable"`
	IP          string            `yaml:"ip"`
	Port        int               `yaml:"port"`
	Sessions    string            `yaml:"sessions"`
	Verbose     bool              `yaml:"verbose"`
	Environment map[string]string `yaml:"environment"`
}

// HandlerSettings configures one named group of standalone job handlers.
type HandlerSettings struct {
	Processes    int               `yaml:"processes"`
	NameTemplate string            `yaml:"name_template"`
	Pools        []string          `yaml:"pools"`
	Environment  map[string]string `yaml:"environment"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// applyDefaults fills unset settings with their documented defaults.
func (s *Settings) applyDefaults() {
	if s.InstanceName == "" {
		s.InstanceName = DefaultInstanceName
	}
	if s.ProcessManager == "" {
		s.ProcessManager = "supervisor"
	}
	if len(s.Web) == 0 {
		s.Web = WebList{{}}
	}
	for i := range s.Web {
		web := &s.Web[i]
		if web.Bind == "" {
			web.Bind = DefaultWebBind
		}
		if web.Workers == 0 {
			web.Workers = DefaultWebWorkers
		}
		if web.Timeout == 0 {
			web.Timeout = DefaultWebTimeout
		}
		if web.RestartTimeout == 0 {
			web.RestartTimeout = int(DefaultRestartTimeout.Seconds())
		}
	}
	if s.Worker.Concurrency == 0 {
		s.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if s.Worker.LogLevel == "" {
		s.Worker.LogLevel = DefaultWorkerLogLevel
	}
	if s.Worker.Queues == "" {
		s.Worker.Queues = DefaultWorkerQueues
	}
	if s.Uploader.Host == "" {
		s.Uploader.Host = DefaultUploaderHost
	}
	if s.Uploader.Port == 0 {
		s.Uploader.Port = DefaultUploaderPort
	}
	if s.Proxy.IP == "" {
		s.Proxy.IP = DefaultProxyIP
	}
	if s.Proxy.Port == 0 {
		s.Proxy.Port = DefaultProxyPort
	}
	for name, h := range s.Handlers {
		if h.Processes == 0 {
			h.Processes = 1
		}
		if h.NameTemplate == "" {
			h.NameTemplate = DefaultHandlerNameTemplate
		}
		s.Handlers[name] = h
	}
}
