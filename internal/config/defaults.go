package config

const (
	defaultConfigPath               = "~/.config/vigil/config.toml"
	defaultBackendURL               = "http://localhost:8000"
	defaultRequestTimeout           = 30
	defaultPreprocessOutputTemplate = "../data/output/{video_id}/anomaly_recognition_preprocessor"
	defaultStateDir                 = "~/.local/share/vigil"
	defaultLogDir                   = "~/.local/share/vigil/logs"
	defaultAPIBind                  = "127.0.0.1:7790"
	defaultResultsDelayMS           = 1000
	defaultNotifyRequestTimeout     = 10
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Backend: Backend{
			URL:                      defaultBackendURL,
			RequestTimeout:           defaultRequestTimeout,
			PreprocessOutputTemplate: defaultPreprocessOutputTemplate,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Run: Run{
			ResultsDelayMS: defaultResultsDelayMS,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RunCompleted:   true,
			RunFailed:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		History: History{
			Enabled: true,
		},
	}
}
