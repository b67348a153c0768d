package config

// Default values for configuration options. These are layer 0 of the
// override chain and match the API's limits and the vendor scripts' timing.
const (
	defaultLogLevel             = "warn"
	defaultPageLimit            = 1000
	defaultActivitySettle       = "30s"
	defaultActivityPollInterval = "15s"
	defaultActivityMaxPolls     = 20
	defaultHTTPTimeout          = "60s"
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset fields keep defaults.
// Identity fields have no defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:             defaultLogLevel,
		PageLimit:            defaultPageLimit,
		ActivitySettle:       defaultActivitySettle,
		ActivityPollInterval: defaultActivityPollInterval,
		ActivityMaxPolls:     defaultActivityMaxPolls,
		HTTPTimeout:          defaultHTTPTimeout,
	}
}
