// Package logging configures the process-wide structured logger.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing human-readable timestamped lines to stderr,
// keeping stdout free for the console summary.
func New(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}
