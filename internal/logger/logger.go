// Package logger предоставляет логирование с префиксом сервиса поверх zap,
// чтобы весь код писал логи через один набор функций. Поддерживается логирование времени выполнения функций.
package logger

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// slowCall: порог, начиная с которого длительность вызова логируется и при LOG_LEVEL=info.
const slowCall = 100 * time.Millisecond

var (
	mu     sync.RWMutex
	once   sync.Once
	root   *zap.Logger
	sugar  *zap.SugaredLogger
	prefix string
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	debug  atomic.Bool
)

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func initLogger() {
	lvl := parseLevel(os.Getenv("LOG_LEVEL"))
	level.SetLevel(lvl)
	debug.Store(lvl == zapcore.DebugLevel)

	var cfg zap.Config
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	cfg.Level = level
	cfg.DisableStacktrace = true
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}
	mu.Lock()
	root = l
	sugar = named(l, prefix)
	mu.Unlock()
}

func named(l *zap.Logger, p string) *zap.SugaredLogger {
	if p == "" {
		return l.Sugar()
	}
	return l.Named(p).Sugar()
}

func get() *zap.SugaredLogger {
	once.Do(initLogger)
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// SetPrefix задаёт префикс для всех последующих логов (например "api", "push").
func SetPrefix(p string) {
	once.Do(initLogger)
	mu.Lock()
	prefix = p
	sugar = named(root, p)
	mu.Unlock()
}

// SetLevel меняет уровень на лету (значение из конфига перекрывает LOG_LEVEL).
func SetLevel(s string) {
	once.Do(initLogger)
	lvl := parseLevel(s)
	level.SetLevel(lvl)
	debug.Store(lvl == zapcore.DebugLevel)
}

// useCore подменяет вывод (только для тестов пакета).
func useCore(core zapcore.Core) {
	once.Do(initLogger)
	mu.Lock()
	root = zap.New(core)
	sugar = named(root, prefix)
	mu.Unlock()
}

// Info пишет в лог с префиксом.
func Info(v ...any) {
	get().Info(v...)
}

// Infof форматирует и пишет с префиксом.
func Infof(format string, v ...any) {
	get().Infof(format, v...)
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	get().Debugf(format, v...)
}

// Error пишет ошибку с префиксом.
func Error(v ...any) {
	get().Error(v...)
}

// Errorf форматирует ошибку с префиксом.
func Errorf(format string, v ...any) {
	get().Errorf(format, v...)
}

// Sync сбрасывает буферы zap; вызывается перед выходом из процесса.
func Sync() {
	_ = get().Sync()
}

// LogDuration логирует имя функции и время выполнения в миллисекундах.
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug: все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if debug.Load() || elapsed >= slowCall {
		get().Infow("duration", "fn", fn, "duration_ms", elapsed.Milliseconds())
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
