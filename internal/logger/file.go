package logger

import (
	"fmt"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures the rotating file sink.
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type fileSink struct {
	lj *lumberjack.Logger
}

func newFileSink(cfg FileConfig) (*fileSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("no file path configured")
	}
	return &fileSink{lj: &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}}, nil
}

func (f *fileSink) write(e Entry) {
	line := fmt.Sprintf("%s [%-5s] %s%s", e.Time.Format(time1123), e.Level, componentPrefix(e.Component), e.Msg) + formatFields(e.Fields)
	fmt.Fprintln(f.lj, line)
}

func (f *fileSink) close() error { return f.lj.Close() }

const time1123 = "2006-01-02T15:04:05.000Z07:00"
