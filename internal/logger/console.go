package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// ConsoleConfig configures the console sink.
type ConsoleConfig struct {
	Enabled bool
	Color   bool // only takes effect when the output is a real terminal
}

type consoleSink struct {
	w       io.Writer
	colored bool
}

var levelColor = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgCyan),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgHiRed, color.Bold),
}

func newConsoleSink(cfg ConsoleConfig) *consoleSink {
	w := colorable.NewColorableStderr()
	colored := cfg.Color && isatty.IsTerminal(os.Stderr.Fd())
	return &consoleSink{w: w, colored: colored}
}

func (c *consoleSink) write(e Entry) {
	line := fmt.Sprintf("%s [%-5s] %s%s", e.Time.Format("15:04:05.000"), e.Level, componentPrefix(e.Component), e.Msg) + formatFields(e.Fields)
	if c.colored {
		levelColor[e.Level].Fprintln(c.w, line)
		return
	}
	fmt.Fprintln(c.w, line)
}

func (c *consoleSink) close() error { return nil }

func componentPrefix(component string) string {
	if component == "" {
		return ""
	}
	return "(" + component + ") "
}
