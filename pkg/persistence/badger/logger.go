package badger

import (
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// badgerLoggerAdapter routes Badger's printf-style logging into zap.
// Badger is chatty at info level during compaction, so info is demoted to debug.
type badgerLoggerAdapter struct {
	sugar *zap.SugaredLogger
}

var _ badgerdb.Logger = (*badgerLoggerAdapter)(nil)

func newBadgerLoggerAdapter(l *zap.Logger) *badgerLoggerAdapter {
	if l == nil {
		l = zap.NewNop()
	}
	return &badgerLoggerAdapter{sugar: l.Sugar().With("component", "badger")}
}

func (b *badgerLoggerAdapter) Errorf(format string, args ...interface{}) {
	b.sugar.Errorf(format, args...)
}

func (b *badgerLoggerAdapter) Warningf(format string, args ...interface{}) {
	b.sugar.Warnf(format, args...)
}

func (b *badgerLoggerAdapter) Infof(format string, args ...interface{}) {
	b.sugar.Debugf(format, args...)
}

func (b *badgerLoggerAdapter) Debugf(format string, args ...interface{}) {
	b.sugar.Debugf(format, args...)
}
