package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailFilesDeliversAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web.log")
	require.NoError(t, os.WriteFile(path, []byte("old line\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lines := TailFiles(ctx, map[string]string{"shop-web@0": path})

	// The tailer starts at end of file, so only appended lines arrive.
	time.Sleep(2 * tailPollInterval)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("hello\nworld\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var got []string
	deadline := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case line := <-lines:
			assert.Equal(t, "shop-web@0", line.Unit)
			got = append(got, line.Line)
		case <-deadline:
			t.Fatalf("timed out waiting for lines, got %v", got)
		}
	}
	assert.Equal(t, []string{"hello", "world"}, got)
	assert.NotContains(t, got, "old line")
}

func TestTailFilesClosesOnCancelWithoutConsumer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	lines := TailFiles(ctx, map[string]string{"shop-worker": path})

	// Fill well past the channel buffer while nothing drains, then cancel:
	// the channel must still close instead of leaking a blocked poller.
	time.Sleep(2 * tailPollInterval)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(strings.Repeat("line\n", 200))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	time.Sleep(2 * tailPollInterval)

	cancel()

	closed := make(chan struct{})
	go func() {
		for range lines {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("tail channel did not close after cancellation")
	}
}
