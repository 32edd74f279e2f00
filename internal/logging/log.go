package logging

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configure the process logger
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// LogFactory hands out the process logger
type LogFactory interface {
	Logger() logr.Logger
}

// ZapLogFactory builds logr loggers backed by zap
type ZapLogFactory struct {
	core zapcore.Core
}

// NewLogFactory validates opts and prepares the zap core. Logs go to
// opts.Writer so they never mix with rendered templates on stdout.
func NewLogFactory(opts Options) (*ZapLogFactory, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	var encoder zapcore.Encoder
	switch opts.Format {
	case FormatConsole, "":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encoder = zapcore.NewConsoleEncoder(cfg)
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, fmt.Errorf("invalid log format %q (console or json)", opts.Format)
	}

	return &ZapLogFactory{
		core: zapcore.NewCore(encoder, zapcore.AddSync(opts.Writer), level),
	}, nil
}

func (f *ZapLogFactory) Logger() logr.Logger {
	return zapr.NewLogger(zap.New(f.core))
}
