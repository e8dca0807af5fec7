package grf

import "github.com/sirupsen/logrus"

// log is the package-level diagnostic logger. It defaults to logrus's
// standard logger, which is silent unless the embedding application raises
// its level — this package never logs above Debug, since progress and
// warnings are the caller's concern via ProgressFunc and returned errors,
// not this library's.
var log logrus.FieldLogger = logrus.StandardLogger()

// SetLogger installs a logger for internal diagnostics (currently the
// QuickMerge-to-FullRepack fallback in Save). Intended for applications that
// embed this package alongside their own logrus configuration.
func SetLogger(l logrus.FieldLogger) {
	if l != nil {
		log = l
	}
}
