package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"18", 18},
		{"18,00", 18},
		{"18.0", 18},
		{"1.234,5", 1234.5},
		{"18%", 18},
		{" 7,5 % ", 7.5},
		{"R$ 1.000,00", 1000},
		{"1.234.567", 1234567},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNumber(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	for _, bad := range []string{"abc", "NaN", "Inf", "+Inf", "-infinity"} {
		_, err := ParseNumber(bad)
		assert.Error(t, err, bad)
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "AUTORIZADA", NormalizeText("autorizada"))
	assert.Equal(t, "CANCELAMENTO HOMOLOGADO", NormalizeText("Cancelamento  homologado."))
	assert.Equal(t, "SITUACAO DA NOTA", NormalizeText("Situação da nota"))
}
