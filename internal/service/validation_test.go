package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCPF(t *testing.T) {
	tests := []struct {
		cpf  string
		want bool
	}{
		{"52998224725", true},
		{"11144477735", true},
		{"39053344705", true},
		{"52998224724", false},
		{"11111111111", false},
		{"5299822472", false},
		{"529.982.247-25", false},
		{"5299822472a", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.cpf, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidCPF(tt.cpf))
		})
	}
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"ana@mail.com", true},
		{"ana.souza@mail.com", true},
		{"ana@mail.com.br", false},
		{"ana@mail", false},
		{"@mail.com", false},
		{"ana@.com", false},
		{"ana@mail.", false},
		{"ana@@mail.com", false},
		{"ana", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidEmail(tt.email))
		})
	}
}
