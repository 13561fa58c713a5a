package repository

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLogger_SkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(log.New(&buf, "", 0), gormlogger.Warn)
	sql := func() (string, int64) { return "SELECT * FROM completion_records LIMIT 1", 0 }

	l.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String(), "a missing row is not an error")

	l.Trace(context.Background(), time.Now(), sql, errors.New("disk I/O error"))
	assert.Contains(t, buf.String(), "disk I/O error")
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "streakd.db?_busy_timeout=5000&_foreign_keys=on", sqliteDSN("streakd.db"))
	assert.Equal(t, "file:x?mode=memory&_busy_timeout=5000&_foreign_keys=on", sqliteDSN("file:x?mode=memory"))
}
