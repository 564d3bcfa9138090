package tlsrecord

import "github.com/pion/logging"

// newLogger builds a leveled logger for one session, falling back to
// the default factory the way censys-oss-dtls wires its Conn's logger
// when the caller supplies no Config.LoggerFactory.
func newLogger(factory logging.LoggerFactory, scope string) logging.LeveledLogger {
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}
	return factory.NewLogger(scope)
}
