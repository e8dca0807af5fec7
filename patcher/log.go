package patcher

import "github.com/sirupsen/logrus"

// log is the package-level diagnostic logger, mirroring package grf's
// SetLogger convention so an embedding application shares one logrus
// configuration across both layers.
var log logrus.FieldLogger = logrus.StandardLogger()

// SetLogger installs a logger for internal diagnostics (backup failures,
// entries skipped during a merge, and failed patches in ApplyPatches), all
// logged at Warn level.
func SetLogger(l logrus.FieldLogger) {
	if l != nil {
		log = l
	}
}
