package logger

// Config controls both logging sinks. Zero value is not directly usable;
// use DefaultConfig and override fields.
type Config struct {
	Level   string // debug, info, warn, error
	Console ConsoleConfig
	File    FileConfig
}

// DefaultConfig returns a console-only, info-level configuration.
func DefaultConfig() *Config {
	return &Config{
		Level: "info",
		Console: ConsoleConfig{
			Enabled: true,
			Color:   true,
		},
		File: FileConfig{
			Enabled:    false,
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}
