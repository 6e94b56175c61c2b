package playback

import "github.com/sirupsen/logrus"

// pkgLogger is the fallback logger used when an Engine hasn't been
// given one of its own via WithLogger. Every transient, recovered
// condition logs through this seam at Warn.
var pkgLogger logrus.FieldLogger = logrus.StandardLogger()

// logger returns the package-level fallback logger. Engine methods
// prefer e.log when set.
func logger() logrus.FieldLogger { return pkgLogger }

// SetLogger overrides the package-level fallback logger used by any
// Engine constructed without WithLogger.
func SetLogger(l logrus.FieldLogger) {
	if l != nil {
		pkgLogger = l
	}
}
