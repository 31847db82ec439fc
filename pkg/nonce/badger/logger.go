package badger

import (
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// storeLog forwards badger's internal messages to the nonce store's logger.
// Badger reports routine compaction and value-log work at info, which is
// noise next to request verification, so info drops to debug.
type storeLog struct {
	sugar *zap.SugaredLogger
	path  string
}

var _ badgerdb.Logger = (*storeLog)(nil)

func newStoreLog(logger *zap.Logger, path string) *storeLog {
	return &storeLog{sugar: logger.Named("nonce-badger").Sugar(), path: path}
}

func (s *storeLog) emit(level zapcore.Level, format string, args []interface{}) {
	s.sugar.Logf(level, strings.TrimRight(format, "\n")+" [db=%s]", append(args, s.path)...)
}

func (s *storeLog) Errorf(format string, args ...interface{}) {
	s.emit(zapcore.ErrorLevel, format, args)
}

func (s *storeLog) Warningf(format string, args ...interface{}) {
	s.emit(zapcore.WarnLevel, format, args)
}

func (s *storeLog) Infof(format string, args ...interface{}) {
	s.emit(zapcore.DebugLevel, format, args)
}

func (s *storeLog) Debugf(format string, args ...interface{}) {
	s.emit(zapcore.DebugLevel, format, args)
}
