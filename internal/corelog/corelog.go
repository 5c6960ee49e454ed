// Package corelog builds the zap.SugaredLogger that coap.Endpoint and the
// example binaries log through, with an optional rotating file sink in
// place of zap's plain file core.
package corelog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger New builds. A zero value yields an info
// level, JSON-encoded logger writing to stderr.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Anything else
	// falls back to "info".
	Level string

	// File, if non-empty, routes output through a rotating lumberjack
	// sink instead of stderr.
	File string

	// MaxSizeMB is the lumberjack rotation threshold. Defaults to 10 when
	// File is set and MaxSizeMB is zero.
	MaxSizeMB int

	// MaxBackups caps how many rotated files lumberjack keeps.
	MaxBackups int

	// Development switches to zap's human-friendly console encoder and
	// adds caller annotations to every entry (as does the "debug" level).
	// No stacktraces are attached.
	Development bool
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a *zap.SugaredLogger from opts. The returned logger's Sync
// should be deferred by the caller; sync errors on stderr/stdout are
// expected on some platforms and safe to ignore.
func New(opts Options) (*zap.SugaredLogger, error) {
	level := parseLevel(opts.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)
	if opts.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize == 0 {
			maxSize = 10
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		})
	} else {
		sink = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(encoder, sink, level)

	logOpts := []zap.Option{zap.AddCallerSkip(0)}
	if opts.Development || level == zapcore.DebugLevel {
		logOpts = append(logOpts, zap.AddCaller())
	}

	return zap.New(core, logOpts...).Sugar(), nil
}

// Nop returns a logger that discards everything, for tests and callers
// that never configured logging.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
