package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/sareehub-backend/pkg/config"
	"github.com/angelmondragon/sareehub-backend/pkg/gcp"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errNoTables             = errors.New("at least one bigquery table is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// TableSpec describes a destination table. Schema and PartitionField are only
// used when the table has to be created.
type TableSpec struct {
	Name           string
	Schema         bigquery.Schema
	PartitionField string
}

// Client streams rows into a fixed set of tables inside one dataset.
type Client struct {
	client     *bigquery.Client
	dataset    *bigquery.Dataset
	specs      map[string]TableSpec
	autoCreate bool

	mu        sync.Mutex
	inserters map[string]*bigquery.Inserter
}

// NewClient opens the dataset and checks every table in specs. Missing tables
// are created when cfg.AutoCreate is set and reported as errors otherwise.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, specs []TableSpec, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcpCfg.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	byName, err := indexSpecs(specs)
	if err != nil {
		return nil, err
	}

	bq, err := bigquery.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{
		client:     bq,
		dataset:    bq.Dataset(datasetID),
		specs:      byName,
		autoCreate: cfg.AutoCreate,
		inserters:  make(map[string]*bigquery.Inserter, len(byName)),
	}
	created, err := c.ensureTables(ctx)
	if err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset":        datasetID,
			"tables":         len(byName),
			"tables_created": created,
		}), "bigquery client initialized")
	}
	return c, nil
}

func indexSpecs(specs []TableSpec) (map[string]TableSpec, error) {
	out := make(map[string]TableSpec, len(specs))
	for _, spec := range specs {
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" {
			continue
		}
		if _, dup := out[spec.Name]; dup {
			return nil, fmt.Errorf("bigquery table %q listed twice", spec.Name)
		}
		out[spec.Name] = spec
	}
	if len(out) == 0 {
		return nil, errNoTables
	}
	return out, nil
}

func (c *Client) ensureTables(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return nil, fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}

	var created []string
	for name, spec := range c.specs {
		_, err := c.dataset.Table(name).Metadata(ctx)
		switch {
		case err == nil:
			continue
		case !isNotFound(err):
			return nil, fmt.Errorf("checking table %q: %w", name, err)
		case !c.autoCreate || len(spec.Schema) == 0:
			return nil, fmt.Errorf("table %q does not exist", name)
		}
		if err := c.dataset.Table(name).Create(ctx, tableMetadata(spec)); err != nil {
			return nil, fmt.Errorf("creating table %q: %w", name, err)
		}
		created = append(created, name)
	}
	return created, nil
}

func tableMetadata(spec TableSpec) *bigquery.TableMetadata {
	md := &bigquery.TableMetadata{Schema: spec.Schema}
	if spec.PartitionField != "" {
		md.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: spec.PartitionField}
	}
	return md
}

// Ping checks that the dataset and every table are still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	for name := range c.specs {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			return fmt.Errorf("table %q: %w", name, err)
		}
	}
	return nil
}

// InsertRows streams rows into one of the tables the client was built with.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	if len(rows) == 0 {
		return nil
	}
	inserter, err := c.inserter(strings.TrimSpace(table))
	if err != nil {
		return err
	}
	return inserter.Put(ctx, rows)
}

func (c *Client) inserter(table string) (*bigquery.Inserter, error) {
	if _, ok := c.specs[table]; !ok {
		return nil, fmt.Errorf("bigquery table %q is not registered", table)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ins, ok := c.inserters[table]
	if !ok {
		ins = c.dataset.Table(table).Inserter()
		c.inserters[table] = ins
	}
	return ins, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
