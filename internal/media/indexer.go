package media

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrScanInProgress is returned when another scan holds the scanner.
var ErrScanInProgress = errors.New("scan already in progress")

// Indexer scans one library path and then fills in missing metadata.
type Indexer struct {
	scanner  *Scanner
	metadata *MetadataService
	path     string
	name     string
	logger   zerolog.Logger
}

func NewIndexer(scanner *Scanner, metadata *MetadataService, path, name string, logger zerolog.Logger) *Indexer {
	return &Indexer{
		scanner:  scanner,
		metadata: metadata,
		path:     path,
		name:     name,
		logger:   logger.With().Str("component", "indexer").Logger(),
	}
}

func (ix *Indexer) Path() string { return ix.path }

func (ix *Indexer) IsScanning() bool { return ix.scanner.IsScanning() }

// Index rescans the library. Metadata failures are logged; only scan
// errors are returned.
func (ix *Indexer) Index(ctx context.Context) (*ScanStats, error) {
	if ix.path == "" {
		return nil, errors.New("no library path configured")
	}

	stats, err := ix.scanner.ScanPath(ix.path, ix.name)
	if err != nil {
		return stats, err
	}
	if stats == nil {
		return nil, ErrScanInProgress
	}

	if ix.metadata != nil {
		if _, err := ix.metadata.Process(ctx); err != nil && ctx.Err() == nil {
			ix.logger.Warn().Err(err).Msg("metadata pass failed")
		}
	}
	return stats, nil
}
