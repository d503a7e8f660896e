package dataset

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"mmp-pipeline/internal/mmp"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestNewDataset(t *testing.T) {
	ds := New("Missing Migrants Project Data")
	require.Equal(t, "missing-migrants-project-data", ds.Name)
	require.Equal(t, "0", ds.Subnational)

	ds.SetTimePeriod(mmp.DateRange{
		Min: time.Date(2014, 1, 6, 0, 0, 0, 0, time.UTC),
		Max: time.Date(2024, 7, 28, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, "[2014-01-06T00:00:00 TO 2024-07-28T23:59:59]", ds.TimePeriod())

	ds.AddOtherLocation("World")
	ds.AddOtherLocation("world")
	ds.AddTags([]string{"Migration", " refugees ", "", "migration"}, "vocab")

	expect := map[string]any{
		"name":         "missing-migrants-project-data",
		"title":        "Missing Migrants Project Data",
		"subnational":  "0",
		"dataset_date": "[2014-01-06T00:00:00 TO 2024-07-28T23:59:59]",
		"groups":       []Group{{Name: "world"}},
		"tags": []Tag{
			{Name: "migration", VocabularyID: "vocab"},
			{Name: "refugees", VocabularyID: "vocab"},
		},
	}
	if diff := cmp.Diff(expect, ds.Fields()); diff != "" {
		t.Fatal(diff)
	}
}

func TestUpdateFromYAML(t *testing.T) {
	ds := New("Placeholder Title")
	ds.Set("notes", "overwritten")

	err := ds.UpdateFromYAML(filepath.Join("testdata", "hdx_dataset_static.yaml"))
	require.NoError(t, err)

	fields := ds.Fields()
	require.Equal(t, "cc-by-igo", fields["license_id"])
	require.Equal(t, false, fields["private"])
	require.Equal(t, "7", fields["data_update_frequency"])
	require.Equal(t, "Missing Migrants Project Data", fields["title"])
	require.Equal(t, "Data on migrants who died or went missing on migratory routes worldwide.", fields["notes"])
	// name is computed from the constructor title
	require.Equal(t, "placeholder-title", fields["name"])
}

func TestUpdateFromYAMLErrors(t *testing.T) {
	ds := New("x")
	require.Error(t, ds.UpdateFromYAML(filepath.Join("testdata", "missing.yaml")))
	require.ErrorContains(t, ds.UpdateFromYAML(filepath.Join("testdata", "broken.yaml")), "parse")
}

func TestMarshalJSON(t *testing.T) {
	ds := New("Missing Migrants Project Data")
	ds.AddOtherLocation("world")
	ds.AddResource(Resource{Name: "a.csv", Format: "csv", Path: "/tmp/a.csv"})
	ds.AddResource(Resource{Name: "a.csv", Format: "csv", Description: "replaced"})

	data, err := json.Marshal(ds)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "missing-migrants-project-data", decoded["name"])
	require.Equal(t, []any{map[string]any{"name": "world"}}, decoded["groups"])

	resources := decoded["resources"].([]any)
	require.Len(t, resources, 1)
	resource := resources[0].(map[string]any)
	require.Equal(t, "replaced", resource["description"])
	require.NotContains(t, resource, "Path")
}
