// Package logging builds the structured loggers every supervisor and
// worker process uses, mapping spec §7's error-class taxonomy onto
// logrus levels: WARN for configuration/protocol-recoverable
// conditions, ERROR for the ERROR_SIGN class, FATAL only for resource
// errors that abort the process.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger for component (e.g. "fd", "sf_ftp", "afd_mon"),
// tagged with a stable "component" field so every line it emits can be
// attributed to the process that wrote it.
func New(component string) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log.WithField("component", component)
}

// WithHost returns a child entry tagged with the host alias a log line
// concerns, the same per-record tagging `backend/ftp/ftp.go` applies
// via fs.Debugf(f, ...) where f identifies the remote.
func WithHost(entry *logrus.Entry, alias string) *logrus.Entry {
	return entry.WithField("alias", alias)
}

// WithPos returns a child entry tagged with an FSA/FRA/MSA row
// position.
func WithPos(entry *logrus.Entry, pos int) *logrus.Entry {
	return entry.WithField("pos", pos)
}
