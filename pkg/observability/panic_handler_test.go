package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	func() {
		defer RecoverPanic(logger, "test operation")
		panic("boom")
	}()

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "panic recovered", entry["msg"])
	assert.Equal(t, "boom", entry["panic"])
	assert.Equal(t, "test operation", entry["context"])
	assert.NotEmpty(t, entry["stack"])
}

func TestRecoverPanic_NoPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(ErrorLevel, &buf)

	func() {
		defer RecoverPanic(logger, "quiet operation")
	}()

	assert.Zero(t, buf.Len())
}

func TestMustRecover(t *testing.T) {
	err := func() (err error) {
		defer func() { err = MustRecover(recover()) }()
		panic("bad input")
	}()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad input")

	assert.NoError(t, MustRecover(nil))
}
