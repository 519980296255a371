package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	parser := NewCatalogParser()

	tests := []struct {
		name     string
		input    string
		expected float64
		hasError bool
	}{
		{"Dollar amount", "$3.49", 3.49, false},
		{"Dollar with thousands", "$1,249.00 / CTN", 1249.00, false},
		{"Dollar with space", "$ 12.5 per SF", 12.5, false},
		{"Labelled price", "Dealer Price: 4.15", 4.15, false},
		{"Bare number with basis", "2.89 / SY", 2.89, false},
		{"Zero is not a price", "$0.00", 0, true},
		{"Call for price", "Call for pricing", 0, true},
		{"Empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := parser.ParsePrice(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				assert.Nil(t, price)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, *price, 0.0001)
		})
	}
}

func TestParseBasis(t *testing.T) {
	parser := NewCatalogParser()

	tests := []struct {
		input    string
		expected string
	}{
		{"$3.49 / SF", "SF"},
		{"$3.49 per sq. ft.", "SF"},
		{"$21.99/SY", "SY"},
		{"$1.10 per linear foot", "LF"},
		{"$64.20 / carton", "CTN"},
		{"$9.00 each", ""},
		{"$9.00 / each", "EA"},
		{"$9.00", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parser.ParseBasis(tt.input))
		})
	}
}

func TestParseCoverage(t *testing.T) {
	parser := NewCatalogParser()

	value, unit, err := parser.ParseCoverage("Coverage: 23.5 sq. ft. per carton")
	require.NoError(t, err)
	assert.InDelta(t, 23.5, *value, 0.0001)
	assert.Equal(t, "SF", unit)

	value, unit, err = parser.ParseCoverage("12 SY / roll")
	require.NoError(t, err)
	assert.InDelta(t, 12.0, *value, 0.0001)
	assert.Equal(t, "SY", unit)

	_, _, err = parser.ParseCoverage("sold individually")
	assert.Error(t, err)
}

func TestDocumentText(t *testing.T) {
	doc, err := Document(`<div class="name">  Oak   Plank
		Natural </div>`)
	require.NoError(t, err)
	assert.Equal(t, "Oak Plank Natural", Text(doc.Find(".name")))
}
