package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the shared application logger.
var Logger = logrus.New()

// Config controls log level and the optional rotating file output.
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // empty = console only
	MaxSize    int    // MB per file before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	FileOnly   bool // suppress console output; for TUIs that own the terminal
}

// Init configures the shared logger. When OutputFile is set, logs go to both
// the console and a size-rotated file.
func Init(cfg Config) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)

	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if cfg.OutputFile == "" {
		Logger.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
		return err
	}

	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 100
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 5
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 14
	}

	fileOut := &lumberjack.Logger{
		Filename:   cfg.OutputFile,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   cfg.Compress,
	}
	if cfg.FileOnly {
		Logger.SetOutput(fileOut)
	} else {
		Logger.SetOutput(io.MultiWriter(os.Stdout, fileOut))
	}
	return nil
}

// WithComponent tags entries with the originating component name.
func WithComponent(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}
