package grading

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ResponseLog records every raw grading backend response
type ResponseLog interface {
	Record(question, answer, response string)
}

// FileResponseLog appends JSON lines to a file through a dedicated zap logger
type FileResponseLog struct {
	file   *os.File
	logger *zap.Logger
}

// NewFileResponseLog opens path for appending, creating it if needed
func NewFileResponseLog(path string) (*FileResponseLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open response log: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.LevelKey = ""
	encCfg.CallerKey = ""
	encCfg.StacktraceKey = ""

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(f), zapcore.InfoLevel)
	return &FileResponseLog{file: f, logger: zap.New(core)}, nil
}

func (l *FileResponseLog) Record(question, answer, response string) {
	l.logger.Info("model_response",
		zap.String("question", question),
		zap.String("answer", answer),
		zap.String("response", response),
	)
}

// Close flushes and closes the underlying file
func (l *FileResponseLog) Close() error {
	_ = l.logger.Sync()
	return l.file.Close()
}

type nopResponseLog struct{}

func (nopResponseLog) Record(string, string, string) {}

// NopResponseLog discards everything
func NopResponseLog() ResponseLog { return nopResponseLog{} }
