package common

import (
	"github.com/sirupsen/logrus"
)

// SetupLogging configures the process-wide logrus logger.
func SetupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

// Logger returns an entry tagged with the component name.
func Logger(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
