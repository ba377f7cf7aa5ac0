package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"collab-backend/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		User:     "collab",
		Password: "pw",
		DBName:   "collab",
		SSLMode:  "disable",
		TimeZone: "UTC",
	})
	assert.Equal(t, "host=db port=5432 user=collab password=pw dbname=collab sslmode=disable TimeZone=UTC", dsn)
}

func TestCloseNil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
