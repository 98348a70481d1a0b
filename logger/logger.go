package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger. It discards everything until InitLogger runs.
var Logger = zap.NewNop()

// Options selects where and how the node logs.
type Options struct {
	File     string // empty writes to stdout
	Level    string
	Encoding string            // "json" (default) or "console"
	Fields   map[string]string // attached to every entry
}

// InitLogger replaces Logger according to opts.
func InitLogger(opts Options) error {
	level, err := zap.ParseAtomicLevel(opts.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch opts.Encoding {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(cfg)
	case "console":
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	default:
		return fmt.Errorf("unknown log encoding %q", opts.Encoding)
	}

	sink := zapcore.AddSync(os.Stdout)
	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		sink = zapcore.AddSync(file)
	}

	fields := make([]zap.Field, 0, len(opts.Fields))
	for k, v := range opts.Fields {
		fields = append(fields, zap.String(k, v))
	}
	Logger = zap.New(zapcore.NewCore(encoder, sink, level), zap.AddCaller(), zap.Fields(fields...))
	return nil
}

// Component returns Logger tagged with the emitting subsystem.
func Component(name string) *zap.Logger {
	return Logger.With(zap.String("component", name))
}
