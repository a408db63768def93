package pipeline

import (
	"math"
	"testing"

	"github.com/MeKo-Tech/shipscan/internal/detector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams_Valid(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, detector.PolicyFail, p.Policy)
	assert.Equal(t, detector.DefaultComponentSizeCap, p.ComponentSizeCap)
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"water occurrence above 100", func(p *Params) { p.WaterOccMin = 101 }},
		{"negative water occurrence", func(p *Params) { p.WaterOccMin = -1 }},
		{"NaN threshold", func(p *Params) { p.ThresholdDB = math.NaN() }},
		{"infinite threshold", func(p *Params) { p.ThresholdDB = math.Inf(1) }},
		{"negative min length", func(p *Params) { p.MinLengthM = -0.5 }},
		{"negative coast erosion", func(p *Params) { p.CoastErodePx = -1 }},
		{"negative morph radius", func(p *Params) { p.MorphRadiusPx = -1 }},
		{"zero min pixels", func(p *Params) { p.MinPixels = 0 }},
		{"size cap below min pixels", func(p *Params) { p.MinPixels = 10; p.ComponentSizeCap = 5 }},
		{"negative scale", func(p *Params) { p.ScaleM = -10 }},
		{"negative max pixels", func(p *Params) { p.MaxPixels = -1 }},
		{"unknown policy", func(p *Params) { p.Policy = "ignore" }},
		{"negative workers", func(p *Params) { p.Workers = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			require.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}
}

func TestParams_ValidateKeepsDetectorError(t *testing.T) {
	p := DefaultParams()
	p.MinPixels = 0
	err := p.Validate()
	require.ErrorIs(t, err, ErrInvalidParams)
	require.ErrorIs(t, err, detector.ErrInvalidOption)
}

func TestThresholdSweep(t *testing.T) {
	base := DefaultParams()
	sweep := ThresholdSweep(base, []float64{-5, 0, 5})
	require.Len(t, sweep, 3)
	for i, want := range []float64{-5, 0, 5} {
		assert.Equal(t, want, sweep[i].ThresholdDB)
		assert.Equal(t, base.MinPixels, sweep[i].MinPixels)
	}
	assert.Equal(t, DefaultParams(), base, "base is not modified")
}
