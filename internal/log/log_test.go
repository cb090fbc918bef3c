package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecoverPanic(t *testing.T) {
	t.Chdir(t.TempDir())

	var cleaned bool
	func() {
		defer RecoverPanic("test", func() { cleaned = true })
		panic("boom")
	}()
	require.True(t, cleaned)

	matches, err := filepath.Glob("mirror-panic-test-*.log")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Contains(t, string(data), "Panic in test: boom")
	require.Contains(t, string(data), "Stack Trace:")
}

func TestRecoverPanicWithoutPanic(t *testing.T) {
	t.Parallel()

	var cleaned bool
	func() {
		defer RecoverPanic("quiet", func() { cleaned = true })
	}()
	require.False(t, cleaned)
}
