package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"User", RoleUser, false},
		{"user", RoleUser, false},
		{"ADMIN", RoleAdmin, false},
		{" Admin ", RoleAdmin, false},
		{"", "", true},
		{"superuser", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRole)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrincipal_IsAdmin(t *testing.T) {
	assert.True(t, Principal{UserID: 1, Role: RoleAdmin}.IsAdmin())
	assert.False(t, Principal{UserID: 1, Role: RoleUser}.IsAdmin())
	assert.False(t, Principal{}.IsAdmin())
}
