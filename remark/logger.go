package remark

import "go.uber.org/zap"

// Logger encapsulates a zap logger and the module it belongs to.
// Use this through SetLogger() of the analyses.
type Logger struct {
	*zap.SugaredLogger
	module string
}

// NewLogger wraps l with a (stylised) module name.
func NewLogger(l *zap.SugaredLogger, module string) *Logger {
	return &Logger{SugaredLogger: l, module: module}
}

// Module returns the (stylised) module name.
func (l *Logger) Module() string { return l.module }

// LogSetter is implemented by analyses that accept a Logger.
type LogSetter interface {
	SetLogger(*Logger)
}

// Discard returns a Logger that drops everything, for callers that do not
// care about debug output.
func Discard() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}
