package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger

// project specific keys
const (
	RequestIDKey = "request_id"
	UserIdKey    = "user_id"
	ChurchIDKey  = "church_id"
	WalletIDKey  = "wallet_id"
	ServiceKey   = "service"
	EnvKey       = "env"
	ErrorKey     = "error"
)

type (
	requestIDKey struct{}
	userIDKey    struct{}
)

func init() {
	if err := Init("production"); err != nil {
		panic(err)
	}
}

// Init rebuilds the global logger. Outside production the console encoder is
// used and debug messages are kept.
func Init(env string) error {
	config := zap.NewProductionConfig()
	encoderConfig := zap.NewProductionEncoderConfig()

	if env != "production" {
		config = zap.NewDevelopmentConfig()
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	encoderConfig.CallerKey = "caller"
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"

	config.EncoderConfig = encoderConfig
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	l, err := config.Build(zap.AddCallerSkip(1), zap.Fields(zap.String(ServiceKey, "churpay"), zap.String(EnvKey, env)))
	if err != nil {
		return err
	}
	Log = l
	return nil
}

type Fields map[string]interface{}

func Info(msg string, fields ...Fields) {
	if len(fields) > 0 {
		Log.Info(msg, getZapFields(fields[0])...)
		return
	}
	Log.Info(msg)
}

func Error(msg string, fields ...Fields) {
	if len(fields) > 0 {
		Log.Error(msg, getZapFields(fields[0])...)
		return
	}
	Log.Error(msg)
}

func Debug(msg string, fields ...Fields) {
	if len(fields) > 0 {
		Log.Debug(msg, getZapFields(fields[0])...)
		return
	}
	Log.Debug(msg)
}

func Warn(msg string, fields ...Fields) {
	if len(fields) > 0 {
		Log.Warn(msg, getZapFields(fields[0])...)
		return
	}
	Log.Warn(msg)
}

func Fatal(msg string, fields ...Fields) {
	if len(fields) > 0 {
		Log.Fatal(msg, getZapFields(fields[0])...)
		return
	}
	Log.Fatal(msg)
}

// WithError adds an error field to the log entry
func WithError(err error) Fields {
	return Fields{
		ErrorKey: err.Error(),
	}
}

// WithRequestID stores the request id so that service code can tag its log
// lines with the request that caused them.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// FromContext returns the request scoped fields carried by ctx.
func FromContext(ctx context.Context) Fields {
	fields := Fields{}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		fields[RequestIDKey] = id
	}
	if id, ok := ctx.Value(userIDKey{}).(string); ok && id != "" {
		fields[UserIdKey] = id
	}
	return fields
}

func Merge(fields ...Fields) Fields {
	merged := make(Fields)
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	return merged
}

func getZapFields(fields Fields) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return zapFields
}
