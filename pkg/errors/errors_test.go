package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeData, "nothing"))
}

func TestWrapPreservesStack(t *testing.T) {
	inner := New(ErrorTypeStorage, "disk")
	outer := Wrap(inner, ErrorTypeSystem, "query")

	require.NotNil(t, outer)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, IsType(outer, ErrorTypeSystem))

	var target *Error
	require.True(t, As(outer.Unwrap(), &target))
	assert.Equal(t, ErrorTypeStorage, target.Type)
}

func TestNewfAndStack(t *testing.T) {
	err := Newf(ErrorTypeValidation, "page size %d", -1)
	assert.Equal(t, "validation: page size -1", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestIsTypeForeignError(t *testing.T) {
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeInternal))
}
