package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Fitness is a scalar score where higher is better. Negative infinity marks
// a degenerate evaluation.
type Fitness float64

// Degenerate is the fitness assigned to invalid or unscorable individuals.
var Degenerate = Fitness(math.Inf(-1))

// Valid reports whether f can take part in selection and averaging.
func (f Fitness) Valid() bool {
	v := float64(f)
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// MarshalJSON writes finite values as numbers and non-finite values as
// strings, since JSON has no literal for them.
func (f Fitness) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

func (f *Fitness) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*f = Fitness(math.NaN())
		case "+Inf", "Inf":
			*f = Fitness(math.Inf(1))
		case "-Inf":
			*f = Fitness(math.Inf(-1))
		default:
			return fmt.Errorf("invalid fitness %q", s)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Fitness(v)
	return nil
}
