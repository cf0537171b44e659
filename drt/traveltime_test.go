package drt

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		name        string
		spec        string
		coefficient float64
		constant    float64
		err         bool
	}{
		{"identity", "t", 1, 0, false},
		{"coefficient", "2*t", 2, 0, false},
		{"coefficient without star", "2t", 2, 0, false},
		{"fractional coefficient", "1.5*t", 1.5, 0, false},
		{"constant", "t+10", 1, 600, false},
		{"both", "3*t+5", 3, 300, false},
		{"whitespace", " 3 * t + 0.5 ", 3, 30, false},
		{"empty", "", 0, 0, true},
		{"no variable", "3+5", 0, 0, true},
		{"dangling plus", "3*t+", 0, 0, true},
		{"garbage", "3*x+5", 0, 0, true},
		{"negative constant", "t-5", 0, 0, true},
		{"lone dot", ".*t", 0, 0, true},
		{"star without coefficient", "*t", 0, 0, true},
		{"star without coefficient and constant", "*t+5", 0, 0, true},
		{"dot constant", "t+.", 0, 0, true},
		{"trailing dot coefficient", "2.*t", 0, 0, true},
		{"fractional constant", "t+.5", 1, 30, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tt, err := Parse(tc.spec)
			if tc.err {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidSpec))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.coefficient, tt.Coefficient, 1e-9)
			assert.InDelta(t, tc.constant, tt.Constant, 1e-9)
		})
	}
}

func TestSecondsRounds(t *testing.T) {
	tt, err := Parse("1.5*t+1")
	require.NoError(t, err)

	assert.Equal(t, 60, tt.Seconds(0))
	assert.Equal(t, 77, tt.Seconds(11)) // 76.5
	assert.Equal(t, 210, tt.Seconds(100))
	assert.InDelta(t, 76.5, tt.Process(11), 1e-9)
}
