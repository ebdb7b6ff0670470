// Package synclog supplies the default logrus logger used by components
// constructed without an explicit *logrus.Logger, mirroring the teacher's
// practice of threading a *logrus.Logger through constructors
// (NewReplicator(cfg, lg, ...)) while still providing a sane package-level
// fallback for tests and small tools.
package synclog

import "github.com/sirupsen/logrus"

var def = logrus.StandardLogger()

// L returns the default logger.
func L() *logrus.Logger { return def }

// SetDefault overrides the package default logger, e.g. to attach fields
// or redirect output in a hosting application.
func SetDefault(l *logrus.Logger) { def = l }

// Or returns l if non-nil, else the package default.
func Or(l *logrus.Logger) *logrus.Logger {
	if l != nil {
		return l
	}
	return def
}
