package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := LibraryFull("all 10 book slots occupied")

	assert.True(t, Is(err, ErrLibraryFull))
	assert.False(t, Is(err, ErrNotFound))
}

func TestIsMatchesThroughWrapping(t *testing.T) {
	inner := NotFoundf("key %q not found", "slot:03")
	wrapped := fmt.Errorf("loading library: %w", inner)

	assert.True(t, Is(wrapped, ErrNotFound))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(cause, CodePersistence, "failed to persist book record")

	assert.True(t, Is(err, ErrPersistence))
	assert.Equal(t, cause, Unwrap(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestUserVisible(t *testing.T) {
	assert.True(t, LibraryFull("full").UserVisible())
	assert.True(t, Unavailable("tag reader down").UserVisible())
	assert.False(t, Internal("bug").UserVisible())
	assert.False(t, NotFound("missing").UserVisible())
}
