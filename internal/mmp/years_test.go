package mmp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDynamicYears(t *testing.T) {
	testCases := []struct {
		start  int
		end    int
		now    time.Time
		expect []int
	}{
		{
			start:  2014,
			now:    time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC),
			expect: []int{2014, 2015, 2016},
		},
		{
			start:  2014,
			now:    time.Date(2014, time.December, 31, 23, 59, 0, 0, time.UTC),
			expect: []int{2014},
		},
		{
			start:  2020,
			now:    time.Date(2019, time.June, 1, 0, 0, 0, 0, time.UTC),
			expect: nil,
		},
		{
			start:  2014,
			end:    2016,
			now:    time.Date(2024, time.July, 30, 0, 0, 0, 0, time.UTC),
			expect: []int{2014, 2015, 2016},
		},
		{
			start:  2014,
			end:    2030,
			now:    time.Date(2015, time.March, 1, 0, 0, 0, 0, time.UTC),
			expect: []int{2014, 2015},
		},
	}
	for _, test := range testCases {
		policy := DynamicYears{Start: test.start, End: test.end}
		require.Equal(t, test.expect, policy.Years(test.now))
	}
}

func TestFixedYears(t *testing.T) {
	policy := FixedYears{List: []int{2016, 2014, 2015, 2014}}
	require.Equal(t, []int{2014, 2015, 2016}, policy.Years(time.Now()))
	// the configured list is left alone
	require.Equal(t, []int{2016, 2014, 2015, 2014}, policy.List)
}

func TestPolicyFromConfig(t *testing.T) {
	policy, err := PolicyFromConfig(YearsConfig{})
	require.NoError(t, err)
	require.Equal(t, DynamicYears{Start: FirstYear}, policy)

	policy, err = PolicyFromConfig(YearsConfig{Policy: PolicyDynamic, Start: 2018})
	require.NoError(t, err)
	require.Equal(t, DynamicYears{Start: 2018}, policy)

	policy, err = PolicyFromConfig(YearsConfig{Policy: PolicyFixed, List: []int{2014, 2015}})
	require.NoError(t, err)
	require.Equal(t, FixedYears{List: []int{2014, 2015}}, policy)

	policy, err = PolicyFromConfig(YearsConfig{Policy: PolicyDynamic, Start: 2014, End: 2016})
	require.NoError(t, err)
	require.Equal(t, []int{2014, 2015, 2016}, policy.Years(time.Date(2024, time.July, 30, 0, 0, 0, 0, time.UTC)))

	_, err = PolicyFromConfig(YearsConfig{Policy: PolicyDynamic, Start: 2018, End: 2016})
	require.ErrorContains(t, err, "before it starts")

	// the default start counts too
	_, err = PolicyFromConfig(YearsConfig{End: 2010})
	require.Error(t, err)

	_, err = PolicyFromConfig(YearsConfig{Policy: PolicyFixed})
	require.Error(t, err)

	_, err = PolicyFromConfig(YearsConfig{Policy: "weekly"})
	require.Error(t, err)
}
