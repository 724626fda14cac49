package proxyscan

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// readEnvFile returns the key/value pairs of the definition file at path.
// A missing file yields an empty layer; a malformed one is logged and skipped.
func readEnvFile(path string, log logrus.FieldLogger) map[string]string {
	if path == "" {
		return map[string]string{}
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.WithError(err).WithField("path", path).Warn("skipping env file")
		}
		return map[string]string{}
	}

	log.WithFields(logrus.Fields{"path": path, "vars": len(vars)}).Debug("env file loaded")
	return vars
}
