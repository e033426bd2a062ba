package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ongoingai/llmcompare/internal/config"
	"github.com/ongoingai/llmcompare/internal/spans"
)

// ErrProjectNotFound reports that the source has no project by that name.
var ErrProjectNotFound = errors.New("source: project not found")

// Source reads raw spans for a project from a tracing backend. An empty
// result means the project has no spans; it is not an error.
type Source interface {
	Name() string
	Check(ctx context.Context) error
	Fetch(ctx context.Context, project string) ([]spans.RawSpan, error)
	Close() error
}

// Open builds the source selected by cfg.Driver. httpClient is used by the
// Phoenix HTTP source and may be nil.
func Open(cfg config.SourceConfig, httpClient *http.Client) (Source, error) {
	switch strings.TrimSpace(cfg.Driver) {
	case config.DriverPhoenix:
		if httpClient == nil {
			httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond}
		}
		return NewPhoenixSource(PhoenixOptions{
			Endpoint:   cfg.Endpoint,
			APIKey:     cfg.APIKey,
			PageSize:   cfg.PageSize,
			MaxPages:   cfg.MaxPages,
			HTTPClient: httpClient,
		})
	case config.DriverSQLite:
		return NewSQLiteSource(cfg.Path, rowLimit(cfg))
	case config.DriverPostgres:
		return NewPostgresSource(cfg.DSN, rowLimit(cfg))
	case config.DriverFile:
		return NewFileSource(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported source driver %q", cfg.Driver)
	}
}

func rowLimit(cfg config.SourceConfig) int {
	if cfg.PageSize <= 0 || cfg.MaxPages <= 0 {
		return 0
	}
	return cfg.PageSize * cfg.MaxPages
}
