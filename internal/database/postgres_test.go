package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPostgresDB(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	db, err := NewPostgresDB(context.Background(), logger.Sugar(), url, 10*time.Second)
	require.NoError(t, err)
	defer db.Close()

	runStoreContract(t, db)
}
