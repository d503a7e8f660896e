package mmp

import (
	"fmt"
	"slices"
	"time"
)

// FirstYear is the first year the Missing Migrants Project has data for.
const FirstYear = 2014

// YearPolicy decides which years a harvest queries.
type YearPolicy interface {
	Years(now time.Time) []int
}

// DynamicYears queries every year from Start through the current calendar
// year, so a new year is picked up without a config change. A non-zero End
// caps the range.
type DynamicYears struct {
	Start int
	End   int
}

func (p DynamicYears) Years(now time.Time) []int {
	last := now.Year()
	if p.End != 0 {
		last = min(p.End, last)
	}
	var years []int
	for year := p.Start; year <= last; year++ {
		years = append(years, year)
	}
	return years
}

// FixedYears queries exactly the listed years, in ascending order.
type FixedYears struct {
	List []int
}

func (p FixedYears) Years(time.Time) []int {
	years := slices.Clone(p.List)
	slices.Sort(years)
	return slices.Compact(years)
}

const (
	PolicyDynamic = "dynamic"
	PolicyFixed   = "fixed"
)

type YearsConfig struct {
	// dynamic (default) or fixed
	Policy string `json:"policy"`
	// first year of the dynamic range, defaults to FirstYear
	Start int `json:"start"`
	// last year of the dynamic range, the current year when zero
	End int `json:"end"`
	// years of the fixed policy
	List []int `json:"list"`
}

func PolicyFromConfig(cfg YearsConfig) (YearPolicy, error) {
	switch cfg.Policy {
	case "", PolicyDynamic:
		start := cfg.Start
		if start == 0 {
			start = FirstYear
		}
		if cfg.End != 0 && cfg.End < start {
			return nil, fmt.Errorf("year range ends (%d) before it starts (%d)", cfg.End, start)
		}
		return DynamicYears{Start: start, End: cfg.End}, nil
	case PolicyFixed:
		if len(cfg.List) == 0 {
			return nil, fmt.Errorf("fixed year policy needs a non-empty list")
		}
		return FixedYears{List: cfg.List}, nil
	}
	return nil, fmt.Errorf("unknown year policy %q", cfg.Policy)
}
