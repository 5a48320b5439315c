package recomp

import (
	"fmt"
	"os"

	"github.com/prd-tools/recompharness/ascii"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// themedLevelEncoder colors the log level name using the ascii package's
// DefaultTheme, the same theme this module's predecessor used for its
// AST/ASM pretty-printers.
func themedLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	name := level.CapitalString()
	switch level {
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		enc.AppendString(ascii.Color(ascii.DefaultTheme.Error, "%s", name))
	case zapcore.WarnLevel:
		enc.AppendString(ascii.Color(ascii.DefaultTheme.Warning, "%s", name))
	case zapcore.InfoLevel:
		enc.AppendString(ascii.Color(ascii.DefaultTheme.Info, "%s", name))
	default:
		enc.AppendString(ascii.Color(ascii.DefaultTheme.Muted, "%s", name))
	}
}

// NewLogger builds this pipeline's structured logger (spec.md's ambient
// logging stack): a human-readable, theme-colored console encoder when
// stderr is a terminal, JSON otherwise, matching the console/non-TTY
// split the teacher's CLI tooling makes for diagnostics vs. piped output.
func NewLogger(verbose bool) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if verbose {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = themedLevelEncoder

	var encoder zapcore.Encoder
	if isTerminal(os.Stderr) {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		jsonCfg := zap.NewProductionEncoderConfig()
		encoder = zapcore.NewJSONEncoder(jsonCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	return zap.New(core), nil
}

// isTerminal reports whether f looks like an interactive terminal. It's a
// narrow stat-based check rather than a full TTY ioctl probe, which is all
// this pipeline's batch invocation style needs.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// logWarnings emits every warning a component collected (symbol parsing,
// demangling, etc.) as structured log entries rather than dropping them.
func logWarnings(logger *zap.Logger, component string, warnings []string) {
	for _, w := range warnings {
		logger.Warn(fmt.Sprintf("%s: %s", component, w))
	}
}
