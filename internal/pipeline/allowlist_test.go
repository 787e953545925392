package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAllowlist_NoRestriction(t *testing.T) {
	_, ok := CheckAllowlist([]string{"a.go", "b.go"}, nil, nil)
	assert.True(t, ok)
}

func TestCheckAllowlist_DisallowedAlwaysApplies(t *testing.T) {
	f, ok := CheckAllowlist([]string{"secrets/prod.env"}, nil, []string{"secrets/**"})
	assert.False(t, ok)
	assert.Equal(t, "secrets/prod.env", f)
}

func TestCheckAllowlist_OutsideAllowedRejected(t *testing.T) {
	f, ok := CheckAllowlist([]string{"internal/other/x.go"}, []string{"internal/task/**"}, nil)
	assert.False(t, ok)
	assert.Equal(t, "internal/other/x.go", f)
}

func TestCheckAllowlist_WithinAllowedAccepted(t *testing.T) {
	_, ok := CheckAllowlist([]string{"internal/task/types.go"}, []string{"internal/task/**"}, nil)
	assert.True(t, ok)
}
