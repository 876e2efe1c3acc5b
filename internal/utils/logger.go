package utils

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the console logger handed to the downloader. Nothing here
// touches the zerolog global logger.
func NewLogger(w io.Writer, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.DateTime,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func ComponentLogger(parent zerolog.Logger, component string) zerolog.Logger {
	return parent.With().Str("component", component).Logger()
}
