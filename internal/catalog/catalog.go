package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mmp-pipeline/internal/dataset"
	"mmp-pipeline/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/catalog")

var ErrNotFound = errors.New("dataset not found")

const (
	report_catalog_dry_run  = "catalog.dry-run"
	report_catalog_package  = "catalog.package"
	report_catalog_resource = "catalog.resource"
)

type Config struct {
	URL      string `json:"url"`
	APIKey   string `json:"api_key"`
	OwnerOrg string `json:"owner_org"`
	DryRun   bool   `json:"dry_run"`
	Timeout  string `json:"timeout"`
}

// Published describes what a publish call did on the catalog.
type Published struct {
	PackageID   string
	Created     bool
	ResourceIDs []string
	DryRun      bool
}

// Client talks to the action API of a CKAN catalog.
type Client struct {
	http     *resty.Client
	ownerOrg string
	dryRun   bool
	tel      telemetry.API
}

func NewClient(cfg Config, tel telemetry.API) (*Client, error) {
	if cfg.URL == "" && !cfg.DryRun {
		return nil, fmt.Errorf("catalog url was not specified")
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(cfg.URL, "/") + "/api/3/action")
	client.SetHeader("user-agent", "mmp-pipeline")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", cfg.APIKey)
	}
	if cfg.Timeout != "" {
		timeout, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("catalog timeout: %w", err)
		}
		client.SetTimeout(timeout)
	}
	telemetry.InstrumentResty(client, "internal/catalog/http", tel)

	return &Client{
		http:     client,
		ownerOrg: cfg.OwnerOrg,
		dryRun:   cfg.DryRun,
		tel:      tel,
	}, nil
}

type apiError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return e.Type
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *apiError       `json:"error"`
}

type Package struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Resources []Resource `json:"resources"`
}

type Resource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Client) action(ctx context.Context, req *resty.Request, method, action string, out any) error {
	res, err := req.SetContext(ctx).Execute(method, "/"+action)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(res.Body(), &env)
	if res.StatusCode() == http.StatusNotFound ||
		(env.Error != nil && env.Error.Type == "Not Found Error") {
		return fmt.Errorf("%s: %w", action, ErrNotFound)
	}
	if decodeErr != nil {
		return fmt.Errorf("%s: %s: %w", action, res.Status(), decodeErr)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("%s: %w", action, env.Error)
		}
		return fmt.Errorf("%s: unsuccessful response %s", action, res.Status())
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

func (c *Client) ShowPackage(ctx context.Context, id string) (Package, error) {
	var pkg Package
	err := c.action(ctx, c.http.R().SetQueryParam("id", id), http.MethodGet, "package_show", &pkg)
	return pkg, err
}

func (c *Client) CreatePackage(ctx context.Context, fields map[string]any) (Package, error) {
	var pkg Package
	err := c.action(ctx, c.http.R().SetBody(fields), http.MethodPost, "package_create", &pkg)
	return pkg, err
}

func (c *Client) UpdatePackage(ctx context.Context, id string, fields map[string]any) (Package, error) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["id"] = id

	var pkg Package
	err := c.action(ctx, c.http.R().SetBody(body), http.MethodPost, "package_update", &pkg)
	return pkg, err
}

// UploadResource creates the resource on the package, or replaces the file
// of the resource with existingID when it is non-empty.
func (c *Client) UploadResource(ctx context.Context, packageID, existingID string, r dataset.Resource) (Resource, error) {
	form := map[string]string{
		"package_id":    packageID,
		"name":          r.Name,
		"description":   r.Description,
		"format":        r.Format,
		"resource_type": r.ResourceType,
		"url_type":      r.URLType,
	}
	action := "resource_create"
	if existingID != "" {
		action = "resource_update"
		form["id"] = existingID
	}

	req := c.http.R().SetFormData(form)
	if r.Path != "" {
		req.SetFile("upload", r.Path)
	}

	var out Resource
	err := c.action(ctx, req, http.MethodPost, action, &out)
	return out, err
}

func (c *Client) packageFields(ds *dataset.Dataset) map[string]any {
	fields := ds.Fields()
	if _, ok := fields["owner_org"]; !ok && c.ownerOrg != "" {
		fields["owner_org"] = c.ownerOrg
	}
	return fields
}

// Publish creates or updates the dataset by name and uploads every resource.
func (c *Client) Publish(ctx context.Context, ds *dataset.Dataset) (Published, error) {
	ctx, span := tracer.Start(ctx, "catalog:Publish")
	defer span.End()
	span.SetAttributes(attribute.String("dataset", ds.Name))

	fields := c.packageFields(ds)

	if c.dryRun {
		payload, err := json.Marshal(fields)
		if err != nil {
			return Published{}, err
		}
		resources := ds.Resources()
		names := make([]string, len(resources))
		for i, r := range resources {
			names[i] = r.Name
		}
		c.tel.ReportInfo(
			report_catalog_dry_run,
			"dataset", ds.Name,
			"payload", string(payload),
			"resources", strings.Join(names, ","),
		)
		return Published{DryRun: true}, nil
	}

	result := Published{}
	pkg, err := c.ShowPackage(ctx, ds.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		pkg, err = c.CreatePackage(ctx, fields)
		result.Created = true
	case err == nil:
		pkg, err = c.UpdatePackage(ctx, pkg.ID, fields)
	}
	if err != nil {
		span.SetStatus(codes.Error, "failed to save package")
		return Published{}, err
	}
	result.PackageID = pkg.ID
	c.tel.ReportInfo(report_catalog_package, "dataset", ds.Name, "id", pkg.ID, "created", result.Created)

	existing := map[string]string{}
	for _, r := range pkg.Resources {
		existing[r.Name] = r.ID
	}
	for _, r := range ds.Resources() {
		uploaded, err := c.UploadResource(ctx, pkg.ID, existing[r.Name], r)
		if err != nil {
			span.SetStatus(codes.Error, "failed to upload resource")
			return Published{}, fmt.Errorf("resource %s: %w", r.Name, err)
		}
		c.tel.ReportInfo(report_catalog_resource, "resource", r.Name, "id", uploaded.ID)
		result.ResourceIDs = append(result.ResourceIDs, uploaded.ID)
	}
	return result, nil
}
