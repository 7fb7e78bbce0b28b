package ad74xx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariantResolution(t *testing.T) {
	tests := []struct {
		v    Variant
		bits int
		pd   bool
	}{
		{AD7466, 12, false},
		{AD7467, 10, false},
		{AD7468, 8, false},
		{AD7475, 12, true},
		{AD7476, 12, false},
		{AD7476A, 12, false},
		{AD7477, 10, false},
		{AD7477A, 10, false},
		{AD7478, 8, false},
		{AD7478A, 8, false},
		{AD7495, 12, true},
	}
	require.Len(t, tests, int(variantCount))
	for _, tt := range tests {
		t.Run(tt.v.String(), func(t *testing.T) {
			assert.Equal(t, tt.bits, tt.v.Resolution())
			assert.Equal(t, tt.pd, tt.v.SupportsPowerDown())
			assert.True(t, tt.v.Valid())
		})
	}
}

func TestVariantTableExhaustive(t *testing.T) {
	for _, v := range Variants() {
		bits := v.Resolution()
		assert.Contains(t, []int{8, 10, 12}, bits, "variant %s", v)
	}
	assert.Len(t, Variants(), 11)
}

func TestVariantUnknown(t *testing.T) {
	for _, v := range []Variant{-1, variantCount, 42} {
		assert.False(t, v.Valid())
		assert.Equal(t, 0, v.Resolution())
		assert.False(t, v.SupportsPowerDown())
	}
	assert.Equal(t, "Variant(42)", Variant(42).String())
}

func TestParseVariant(t *testing.T) {
	tests := []struct {
		in   string
		want Variant
	}{
		{"AD7466", AD7466},
		{"ad7476a", AD7476A},
		{"7495", AD7495},
		{" AD7478A ", AD7478A},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseVariant(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}

	_, err := ParseVariant("AD7999")
	assert.True(t, errors.Is(err, ErrUnknownVariant))
	assert.Equal(t, `ad74xx: unknown variant "AD7999"`, err.Error())
}

func TestParseVariantRoundTrip(t *testing.T) {
	for _, v := range Variants() {
		got, err := ParseVariant(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}
