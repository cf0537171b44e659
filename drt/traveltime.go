package drt

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Travel time formulas for demand responsive transit, as given by
// drt_max_travel_time and drt_avg_travel_time in trips.txt.
//
// A formula has the form "coefficient*t+constant", where t is the
// direct vehicle travel time in seconds and the constant is given in
// minutes. Both coefficient and constant are optional: "t", "2t",
// "1.5*t" and "t+10" are all valid.

var ErrInvalidSpec = errors.New("invalid travel time spec")

var specRE = regexp.MustCompile(`^(?:(\d+(?:\.\d+)?|\.\d+)\*?)?t(?:\+(\d+(?:\.\d+)?|\.\d+))?$`)

type TravelTime struct {
	Coefficient float64

	// Seconds
	Constant float64
}

func Parse(spec string) (*TravelTime, error) {
	compact := strings.Join(strings.Fields(spec), "")

	m := specRE.FindStringSubmatch(compact)
	if m == nil {
		return nil, errors.Wrapf(ErrInvalidSpec, "'%s'", spec)
	}

	tt := &TravelTime{Coefficient: 1}

	if m[1] != "" {
		c, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidSpec, "coefficient in '%s'", spec)
		}
		tt.Coefficient = c
	}

	if m[2] != "" {
		c, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidSpec, "constant in '%s'", spec)
		}
		tt.Constant = c * 60
	}

	return tt, nil
}

// Applies the formula to a direct travel time.
func (tt *TravelTime) Process(directTime float64) float64 {
	return tt.Coefficient*directTime + tt.Constant
}

// Same as Process, rounded to the nearest second.
func (tt *TravelTime) Seconds(directTime int) int {
	return int(math.Round(tt.Process(float64(directTime))))
}

func (tt *TravelTime) String() string {
	return fmt.Sprintf("%g*t+%g", tt.Coefficient, tt.Constant/60)
}
