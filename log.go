package proxyscan

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger whose level follows cfg.Debug.
// Output goes to out, or to stderr when out is nil.
func NewLogger(cfg Config, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// LogFields returns the fields identifying the node in log entries.
// Secrets and connection strings are left out.
func (c Config) LogFields() logrus.Fields {
	return logrus.Fields{
		"role":       string(c.NodeRole),
		"worker_id":  c.WorkerID,
		"master_url": c.MasterURL,
	}
}
