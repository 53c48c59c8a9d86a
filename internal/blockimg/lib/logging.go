package lib

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the logger used by the engine. Unknown levels fall back to info.
func NewLogger(level string, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
