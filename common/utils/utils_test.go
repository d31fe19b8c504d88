package utils

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterValidations(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterValidations(v))

	type req struct {
		Addr   string `validate:"address"`
		Amount string `validate:"uintstr"`
	}
	assert.NoError(t, v.Struct(req{Addr: "0x52908400098527886E0F7030069857D2E4169EE7", Amount: "1000"}))
	assert.Error(t, v.Struct(req{Addr: "0x1234", Amount: "1000"}))
	assert.Error(t, v.Struct(req{Addr: "0x52908400098527886E0F7030069857D2E4169EE7", Amount: "-1"}))
	assert.Error(t, v.Struct(req{Addr: "0x52908400098527886E0F7030069857D2E4169EE7", Amount: "1.5"}))
}

func TestTranslateError(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterValidations(v))

	type req struct {
		Seller string `json:"seller" validate:"required,address"`
		Amount string `json:"amount" validate:"uintstr"`
		Nonce  uint64 `json:"nonce" validate:"gt=0"`
	}
	tests := []struct {
		name string
		in   req
		want []string
	}{
		{
			name: "custom rules",
			in:   req{Seller: "0x1234", Amount: "-1", Nonce: 1},
			want: []string{
				"seller must be a 0x-prefixed 40 hex character address",
				"amount must be a non-negative integer string",
			},
		},
		{
			name: "builtin rules",
			in:   req{Amount: "1"},
			want: []string{"seller is a required field", "nonce must be greater than 0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := TranslateError(v.Struct(tt.in))
			for _, w := range tt.want {
				assert.Contains(t, msg, w)
			}
		})
	}

	assert.Equal(t, "plain", TranslateError(errors.New("plain")))
}

func TestAddressHelpers(t *testing.T) {
	assert.Equal(t, "0x52908400098527886e0f7030069857d2e4169ee7", NormalizeAddress(" 0x52908400098527886E0F7030069857D2E4169EE7 "))
}
