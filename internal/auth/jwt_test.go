package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_GenerateToken(t *testing.T) {
	service := NewJWTService("test-secret-key", "equipdesk", time.Hour)

	token, err := service.GenerateToken(1, "12345", "Иванов Иван Иванович")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestJWTService_ValidateToken(t *testing.T) {
	service := NewJWTService("test-secret-key", "equipdesk", time.Hour)

	token, err := service.GenerateToken(7, "12345", "Иванов Иван Иванович")
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.EmployeeID)
	assert.Equal(t, "12345", claims.TN)
	assert.Equal(t, "Иванов Иван Иванович", claims.FIO)
	assert.Equal(t, "equipdesk", claims.Issuer)
}

func TestJWTService_ValidateToken_Expired(t *testing.T) {
	service := NewJWTService("test-secret-key", "equipdesk", -time.Hour) // 已过期

	token, err := service.GenerateToken(1, "12345", "Иванов Иван")
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_ValidateToken_WrongSecret(t *testing.T) {
	service := NewJWTService("test-secret-key", "equipdesk", time.Hour)
	other := NewJWTService("another-secret", "equipdesk", time.Hour)

	token, err := service.GenerateToken(1, "12345", "Иванов Иван")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid bearer", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"empty header", "", "", true},
		{"missing prefix", "abc.def.ghi", "", true},
		{"empty token", "Bearer ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := ExtractTokenFromHeader(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}
