package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScope(t *testing.T) {
	var zero Scope
	assert.False(t, zero.Valid())
	assert.Equal(t, ErrInvalid, zero.Check())

	s := New("7c1e3c1a")
	assert.True(t, s.Valid())
	assert.NoError(t, s.Check())
	assert.Equal(t, "7c1e3c1a", s.TenantID())
}
