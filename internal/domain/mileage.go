package domain

import "math"

// floorEpsilon absorbs binary floating point error such as 0.29*100 = 28.999999999999996.
const floorEpsilon = 1e-9

// DisplayMileage returns floor(base * multiplier).
func DisplayMileage(base int64, multiplier float64) int64 {
	return int64(math.Floor(float64(base)*multiplier + floorEpsilon))
}

// ValidMultiplier reports whether m can be used in display arithmetic.
func ValidMultiplier(m float64) bool {
	return m > 0 && !math.IsNaN(m) && !math.IsInf(m, 0)
}

// MinBaseDebit returns the smallest d in [0, base] such that
// DisplayMileage(base-d, m) <= DisplayMileage(base, m) - amount.
//
// The bound starts at ceil(amount/m)+2, is doubled until it reaches the target
// and is then narrowed with a binary search. Display mileage is monotone in
// base, which makes both phases valid.
func MinBaseDebit(base int64, multiplier float64, amount int64) (int64, error) {
	if base < 0 || !ValidMultiplier(multiplier) {
		return 0, ErrInvalidState
	}
	if amount <= 0 {
		return 0, nil
	}
	current := DisplayMileage(base, multiplier)
	target := current - amount
	if target < 0 {
		return 0, ErrInsufficientBalance
	}
	reaches := func(d int64) bool {
		return DisplayMileage(base-d, multiplier) <= target
	}

	estimate := math.Ceil(float64(amount)/multiplier) + 2
	hi := base
	if estimate < float64(base) {
		hi = int64(estimate)
	}
	if hi < 1 {
		hi = 1
	}
	for !reaches(hi) {
		if hi == base {
			// DisplayMileage(0, m) is 0 and target >= 0, so this is unreachable
			// unless the stored values are corrupt.
			return 0, ErrInvalidState
		}
		hi *= 2
		if hi > base {
			hi = base
		}
	}

	// reaches(lo) is false, reaches(hi) is true.
	lo := int64(0)
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if reaches(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}
