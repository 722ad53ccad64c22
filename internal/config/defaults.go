package config

const (
	defaultDataDir         = "~/.local/share/storyloom"
	defaultLogDir          = "~/.local/share/storyloom/logs"
	defaultRequestTimeout  = 30
	defaultStatusTimeout   = 10
	defaultPollInterval    = 2
	defaultStallThreshold  = 180
	defaultMaxPollFailures = 30
	defaultSessionKey      = "default"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultNotifyTimeout   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Service: Service{
			RequestTimeout: defaultRequestTimeout,
			StatusTimeout:  defaultStatusTimeout,
		},
		Tracker: Tracker{
			PollInterval:    defaultPollInterval,
			StallThreshold:  defaultStallThreshold,
			MaxPollFailures: defaultMaxPollFailures,
			SessionKey:      defaultSessionKey,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completion:     true,
			Failure:        true,
			Stall:          false,
		},
	}
}
