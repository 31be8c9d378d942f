package news

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		wantEmail      string
		wantSuggestion string
		wantErr        bool
	}{
		{
			name:      "plain address",
			raw:       "user@example.com",
			wantEmail: "user@example.com",
		},
		{
			name:      "domain is lowercased",
			raw:       "User@EXAMPLE.com",
			wantEmail: "User@example.com",
		},
		{
			name:      "surrounding whitespace trimmed",
			raw:       "  user@example.com  ",
			wantEmail: "user@example.com",
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "no at sign",
			raw:     "example.com",
			wantErr: true,
		},
		{
			name:    "dotless domain",
			raw:     "user@localhost",
			wantErr: true,
		},
		{
			name:           "provider typo suggests a correction",
			raw:            "user@gmial.com",
			wantSuggestion: "user@gmail.com",
			wantErr:        true,
		},
		{
			name:           "another provider typo",
			raw:            "user@hotmial.com",
			wantSuggestion: "user@hotmail.com",
			wantErr:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, suggestion, err := ValidateEmail(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidEmail)
				assert.Equal(t, tt.wantSuggestion, suggestion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEmail, email)
		})
	}
}
