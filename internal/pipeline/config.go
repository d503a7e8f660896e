package pipeline

import (
	"mmp-pipeline/internal/catalog"
	"mmp-pipeline/internal/mmp"
	"mmp-pipeline/lib/configutil/sqlconfig"
	"mmp-pipeline/lib/retriever"
)

const (
	DefaultTitle               = "Missing Migrants Project Data"
	DefaultFilename            = "iom-missing-migrants-project-data.csv"
	DefaultLocation            = "world"
	DefaultOutputFormat        = "json"
	DefaultTagVocabularyID     = "b891512e-9516-4bf5-962a-7a289772a2a1"
	DefaultResourceDescription = "CSV file containing numbers of migrants who have died or gone " +
		"missing in the process of migration towards an international destination since 2014."
)

type DatasetConfig struct {
	Title string `json:"title"`
	// yaml file with the fields that never change between harvests
	StaticYAML          string `json:"static_yaml"`
	ResourceDescription string `json:"resource_description"`
}

// Config is the contents of config.json5.
type Config struct {
	BaseURL      string          `json:"base_url"`
	OutputFormat string          `json:"output_format"`
	DateField    string          `json:"date_field"`
	Filename     string          `json:"filename"`
	Location     string          `json:"location"`
	Years        mmp.YearsConfig `json:"years"`
	Tags         []string        `json:"tags"`
	// vocabulary the tags belong to on the catalog
	TagVocabularyID string `json:"tag_vocabulary_id"`
	// column -> hashtag, a hashtag row is written only when this is set
	HXLTags map[string]string `json:"hxltags"`
	Dataset DatasetConfig     `json:"dataset"`
	// resources are written to a temporary directory when empty
	OutDir string `json:"out_dir"`
	// IANA zone used to decide the current year, defaults to UTC
	Timezone string `json:"timezone"`

	Retriever retriever.Config `json:"retriever"`
	Database  sqlconfig.Struct `json:"database"`
	Catalog   catalog.Config   `json:"catalog"`
	// cron spec used by the schedule command
	Schedule string `json:"schedule"`
}

func (c Config) WithDefaults() Config {
	if c.OutputFormat == "" {
		c.OutputFormat = DefaultOutputFormat
	}
	if c.DateField == "" {
		c.DateField = mmp.DefaultDateField
	}
	if c.Filename == "" {
		c.Filename = DefaultFilename
	}
	if c.Location == "" {
		c.Location = DefaultLocation
	}
	if c.TagVocabularyID == "" {
		c.TagVocabularyID = DefaultTagVocabularyID
	}
	if c.Dataset.Title == "" {
		c.Dataset.Title = DefaultTitle
	}
	if c.Dataset.ResourceDescription == "" {
		c.Dataset.ResourceDescription = DefaultResourceDescription
	}
	return c
}
