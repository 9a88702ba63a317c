package grid

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnmappedValue is returned by Reclassify when a pixel value has no entry
// in the value map and values are required.
var ErrUnmappedValue = errors.New("pixel value not in value map")

// Reclassify substitutes every valid pixel's code through valueMap. Nodata
// pixels, the data type and the nodata sentinel are carried over unchanged.
// Without valuesRequired, unmapped codes keep their value.
func Reclassify(src *Grid, valueMap map[int]int, valuesRequired bool) (*Grid, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	dst := src.Clone()

	for i, v := range src.Data {
		if !src.IsValid(v) {
			continue
		}

		code := int(v)
		if float64(code) != v || math.IsInf(v, 0) {
			return nil, fmt.Errorf("pixel %d holds non-integer code %v", i, v)
		}

		mapped, ok := valueMap[code]
		if !ok {
			if valuesRequired {
				return nil, fmt.Errorf("%w: %d", ErrUnmappedValue, code)
			}
			continue
		}
		dst.Data[i] = float64(mapped)
	}

	return dst, nil
}
