package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"mmp-pipeline/internal/mmp"
	"mmp-pipeline/lib/textutil"

	"gopkg.in/yaml.v3"
)

type Tag struct {
	Name         string `json:"name"`
	VocabularyID string `json:"vocabulary_id,omitempty"`
}

type Group struct {
	Name string `json:"name"`
}

// Dataset is the catalog entry a harvest publishes. Computed fields are
// typed, everything from the static yaml is kept as is and wins over
// computed fields with the same key.
type Dataset struct {
	Name        string
	Title       string
	Subnational string

	timePeriod string
	groups     []Group
	tags       []Tag
	static     map[string]any
	resources  []Resource
}

func New(title string) *Dataset {
	return &Dataset{
		Name:        textutil.Slugify(title),
		Title:       title,
		Subnational: "0",
		static:      map[string]any{},
	}
}

func (d *Dataset) SetTimePeriod(dates mmp.DateRange) {
	d.timePeriod = dates.String()
}

func (d *Dataset) TimePeriod() string {
	return d.timePeriod
}

// AddOtherLocation adds a non-country location such as "world".
func (d *Dataset) AddOtherLocation(location string) {
	name := strings.ToLower(strings.TrimSpace(location))
	if name == "" {
		return
	}
	for _, g := range d.groups {
		if g.Name == name {
			return
		}
	}
	d.groups = append(d.groups, Group{Name: name})
}

func (d *Dataset) Groups() []Group {
	return append([]Group(nil), d.groups...)
}

// AddTags adds tags in order, skipping blanks and tags already present.
func (d *Dataset) AddTags(tags []string, vocabularyID string) {
	for _, t := range tags {
		name := strings.ToLower(strings.TrimSpace(t))
		if name == "" || d.hasTag(name) {
			continue
		}
		d.tags = append(d.tags, Tag{Name: name, VocabularyID: vocabularyID})
	}
}

func (d *Dataset) hasTag(name string) bool {
	for _, t := range d.tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

func (d *Dataset) Tags() []Tag {
	return append([]Tag(nil), d.tags...)
}

// Set stores a static field.
func (d *Dataset) Set(key string, value any) {
	d.static[key] = value
}

func (d *Dataset) Get(key string) (any, bool) {
	v, ok := d.Fields()[key]
	return v, ok
}

// UpdateFromYAML merges the top level keys of a yaml document into the
// static fields.
func (d *Dataset) UpdateFromYAML(path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var static map[string]any
	err = yaml.Unmarshal(contents, &static)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range static {
		d.static[k] = v
	}
	return nil
}

func (d *Dataset) AddResource(r Resource) {
	for i, existing := range d.resources {
		if existing.Name == r.Name {
			d.resources[i] = r
			return
		}
	}
	d.resources = append(d.resources, r)
}

func (d *Dataset) Resources() []Resource {
	return append([]Resource(nil), d.resources...)
}

// GenerateResourceFromRows writes the rows as a csv resource into dir and
// attaches it to the dataset.
func (d *Dataset) GenerateResourceFromRows(dir string, rows []mmp.Row, opts ResourceOptions) (Resource, error) {
	r, err := GenerateResource(dir, rows, opts)
	if err != nil {
		return Resource{}, err
	}
	d.AddResource(r)
	return r, nil
}

// Fields returns the catalog representation of the dataset, without resources.
func (d *Dataset) Fields() map[string]any {
	out := map[string]any{
		"name":        d.Name,
		"title":       d.Title,
		"subnational": d.Subnational,
	}
	if d.timePeriod != "" {
		out["dataset_date"] = d.timePeriod
	}
	if len(d.groups) > 0 {
		out["groups"] = d.Groups()
	}
	if len(d.tags) > 0 {
		out["tags"] = d.Tags()
	}
	for k, v := range d.static {
		out[k] = v
	}
	return out
}

func (d *Dataset) MarshalJSON() ([]byte, error) {
	fields := d.Fields()
	if len(d.resources) > 0 {
		fields["resources"] = d.resources
	}
	return json.Marshal(fields)
}
