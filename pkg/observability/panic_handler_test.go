package observability

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	func() {
		defer RecoverPanic(logger, "test")
		panic("kaboom")
	}()

	assert.Contains(t, buf.String(), "PANIC recovered")
	assert.Contains(t, buf.String(), "kaboom")
}

func TestRecoverPanicWithCallback(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	var got interface{}
	func() {
		defer RecoverPanicWithCallback(logger, "test", func(r interface{}) { got = r })
		panic(42)
	}()
	assert.Equal(t, 42, got)

	got = nil
	func() {
		defer RecoverPanicWithCallback(logger, "test", func(r interface{}) { got = r })
	}()
	assert.Nil(t, got)
}

func TestPanicError(t *testing.T) {
	assert.NoError(t, PanicError(nil))

	sentinel := errors.New("bad")
	assert.ErrorIs(t, PanicError(sentinel), sentinel)
	assert.EqualError(t, PanicError("oops"), "panic: oops")
}
