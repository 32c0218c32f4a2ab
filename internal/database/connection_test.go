package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taskvault/taskvault/internal/config"
)

func TestNewDatabase(t *testing.T) {
	cfg := config.Database{Host: "localhost", Port: 5432, DBName: "test"}

	db := NewDatabase(cfg, "silent")
	assert.NotNil(t, db)
	assert.Equal(t, cfg, db.cfg)
	assert.Nil(t, db.db)
}

func TestDatabase_buildDSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Database
		expected string
	}{
		{
			name: "Full configuration",
			cfg: config.Database{
				Host:     "localhost",
				Port:     5432,
				User:     "postgres",
				Password: "password",
				DBName:   "testdb",
				SSLMode:  "require",
			},
			expected: "host=localhost port=5432 user=postgres password=password dbname=testdb sslmode=require TimeZone=UTC",
		},
		{
			name:     "Default values",
			cfg:      config.Database{},
			expected: "host=localhost port=5432 user=postgres password= dbname=taskvault sslmode=disable TimeZone=UTC",
		},
		{
			name: "Partial configuration",
			cfg: config.Database{
				Host:   "db.example.com",
				Port:   5433,
				User:   "dbuser",
				DBName: "mydb",
			},
			expected: "host=db.example.com port=5433 user=dbuser password= dbname=mydb sslmode=disable TimeZone=UTC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := NewDatabase(tt.cfg, "silent")
			assert.Equal(t, tt.expected, db.buildDSN())
		})
	}
}

func TestDatabase_getLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"bogus", gormlogger.Error},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			db := NewDatabase(config.Database{}, tt.level)
			assert.Equal(t, tt.expected, db.getLogLevel())
		})
	}
}

func TestDatabase_NotConnected(t *testing.T) {
	db := NewDatabase(config.Database{}, "silent")

	assert.Error(t, db.Health(context.Background()))
	assert.Error(t, db.Migrate())
	assert.Error(t, db.WithTransaction(func(tx *gorm.DB) error { return nil }))
	assert.NoError(t, db.Close(), "closing an unconnected database is a no-op")
}

func TestDatabase_SetDB(t *testing.T) {
	inner, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	db := NewDatabase(config.Database{}, "silent")
	db.SetDB(inner)
	assert.Equal(t, inner, db.DB())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, db.Health(ctx))

	assert.NoError(t, db.Close())
	assert.Nil(t, db.DB())
}
