package logsvc

import (
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/feeledger/core"
)

// ZapLogger writes core.Logger entries through zap. Used by the admin CLI and under rollbar.
type ZapLogger struct {
	z *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

func NewZapLogger(z *zap.Logger) *ZapLogger {
	return &ZapLogger{z: z}
}

// NewZap returns a zap logger named name writing to w: JSON lines, or console lines when debug is set.
func NewZap(w io.Writer, name string, debug bool) *zap.Logger {
	var (
		enc   zapcore.Encoder
		level = zapcore.InfoLevel
	)
	if debug {
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		level = zapcore.DebugLevel
	} else {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level)).Named(name)
}

func (l ZapLogger) Debug(msg string, args ...interface{}) { l.z.Debug(msg, fields(args)...) }
func (l ZapLogger) Info(msg string, args ...interface{})  { l.z.Info(msg, fields(args)...) }
func (l ZapLogger) Warn(msg string, args ...interface{})  { l.z.Warn(msg, fields(args)...) }
func (l ZapLogger) Error(msg string, args ...interface{}) { l.z.Error(msg, fields(args)...) }
func (l ZapLogger) Fatal(msg string, args ...interface{}) { l.z.Fatal(msg, fields(args)...) }

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// NewNopLogger discards everything, Fatal included.
func NewNopLogger() core.Logger {
	return nopLogger{}
}

// expected fmt: error, map[string]interface{} (one field per key, sorted), core.Actor
func fields(args []interface{}) []zap.Field {
	flds := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case map[string]interface{}:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				flds = append(flds, zap.Any(k, v[k]))
			}
		case core.Actor:
			if v.ID != "" || v.Name != "" {
				flds = append(flds, zap.String("actor", v.String()))
			}
		case error:
			flds = append(flds, zap.Error(v))
		default:
			flds = append(flds, zap.Any(fmt.Sprintf("arg%d", i), v))
		}
	}
	return flds
}
