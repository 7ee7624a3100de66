package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSentinel = errors.New("already matched")

func TestKindOf(t *testing.T) {
	err := Invariant("match", errSentinel)
	wrapped := fmt.Errorf("handler: %w", err)

	assert.Equal(t, KindInvariant, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, errSentinel))
	assert.Equal(t, "match: already matched", err.Error())
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, IsNotFound(errors.New("boom")))
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("get", "account %s not found", "x")))
	assert.Equal(t, KindValidation, KindOf(Validation("create", "name required")))
	assert.True(t, IsTransient(Transient("save", errors.New("conn reset"))))
	assert.Equal(t, "conflict", KindConflict.String())
}
