package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mmp-pipeline/internal/mmp"
)

var ErrNoRows = errors.New("no usable rows")

type Resource struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Format       string `json:"format"`
	ResourceType string `json:"resource_type"`
	URLType      string `json:"url_type"`
	// Path is the local file uploaded to the catalog.
	Path string `json:"-"`
	Rows int    `json:"-"`
}

type ResourceOptions struct {
	Filename    string
	Description string
	// HXLTags maps column names to hashtags, when non-empty a hashtag row is
	// written below the header.
	HXLTags map[string]string
}

// Header is the ordered field list of the first row, later rows are written
// against it.
func Header(rows []mmp.Row) ([]string, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	header := rows[0].Keys()
	if len(header) == 0 {
		return nil, fmt.Errorf("first row has no fields: %w", ErrNoRows)
	}
	return header, nil
}

// WriteCSV writes a header row, an optional hashtag row and one record per row.
// Fields missing from a row are written empty and fields absent from the
// header are dropped.
func WriteCSV(w io.Writer, rows []mmp.Row, hxltags map[string]string) error {
	header, err := Header(rows)
	if err != nil {
		return err
	}

	out := csv.NewWriter(w)
	err = out.Write(header)
	if err != nil {
		return err
	}
	if len(hxltags) > 0 {
		tags := make([]string, len(header))
		for i, h := range header {
			tags[i] = hxltags[h]
		}
		err = out.Write(tags)
		if err != nil {
			return err
		}
	}

	record := make([]string, len(header))
	for _, row := range rows {
		for i, h := range header {
			record[i], _ = row.Get(h)
		}
		err = out.Write(record)
		if err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

// GenerateResource writes rows to `{dir}/{filename}` as UTF-8 csv.
func GenerateResource(dir string, rows []mmp.Row, opts ResourceOptions) (Resource, error) {
	_, err := Header(rows)
	if err != nil {
		return Resource{}, err
	}
	if opts.Filename == "" {
		return Resource{}, fmt.Errorf("a resource filename was not specified")
	}

	path := filepath.Join(dir, opts.Filename)
	file, err := os.Create(path)
	if err != nil {
		return Resource{}, err
	}
	err = WriteCSV(file, rows, opts.HXLTags)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Resource{}, fmt.Errorf("write %s: %w", path, err)
	}

	return Resource{
		Name:         opts.Filename,
		Description:  opts.Description,
		Format:       "csv",
		ResourceType: "file.upload",
		URLType:      "upload",
		Path:         path,
		Rows:         len(rows),
	}, nil
}
