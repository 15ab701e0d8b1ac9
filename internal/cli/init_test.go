package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monthbook/internal/config"
	"monthbook/internal/log"
)

func testLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(log.Config{Output: buf, Component: log.ComponentApp})
}

func TestUploadersDisabledByDefault(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{
		DriveCredentialsFile: filepath.Join(t.TempDir(), "missing.json"),
		DriveFolderID:        "folder",
	}

	ups := Uploaders(testLogger(&buf), cfg)
	require.Len(t, ups, 2)
	for _, u := range ups {
		assert.False(t, u.Enabled(), u.Target())
	}
	assert.Contains(t, buf.String(), "drive_enabled=false")
	assert.Contains(t, buf.String(), "s3_enabled=false")
}

func TestUploadersS3EnabledByBucket(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{S3Bucket: "reports", S3Region: "eu-west-1"}

	ups := Uploaders(testLogger(&buf), cfg)
	assert.True(t, ups[1].Enabled())
}

func TestOpenExportLogDisabled(t *testing.T) {
	var buf bytes.Buffer
	assert.Nil(t, OpenExportLog(testLogger(&buf), ""))
	assert.Contains(t, buf.String(), "Export history disabled")
}

func TestConnectAMQPDisabled(t *testing.T) {
	var buf bytes.Buffer
	client, err := ConnectAMQP(testLogger(&buf), &config.Config{})
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestGracefulShutdownRunsCleanupOnSignal(t *testing.T) {
	var buf bytes.Buffer
	cleaned := make(chan struct{})
	ctx, done := GracefulShutdown(testLogger(&buf), time.Second, func(context.Context) {
		close(cleaned)
	})
	require.NoError(t, ctx.Err())

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not finish")
	}
	<-cleaned
	assert.Error(t, ctx.Err())
	assert.Contains(t, buf.String(), "signal=terminated")
	assert.Contains(t, buf.String(), "Shutdown complete")
}

func TestGracefulShutdownTimesOut(t *testing.T) {
	var buf bytes.Buffer
	ctx, done := GracefulShutdown(testLogger(&buf), 20*time.Millisecond, func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
	})

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	WaitForShutdown(ctx, done)
	assert.Contains(t, buf.String(), "Shutdown timeout reached")
}
