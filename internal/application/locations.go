package application

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

// LocationLoader reads location lists from object storage.
//
// Supported formats:
//   - CSV with columns name,lon,lat and an optional header row
//   - YAML or JSON with parallel lists: names, longitudes, latitudes
//   - YAML or JSON with a list of {name, lon, lat}, at the top level or under "locations"
type LocationLoader struct {
	storage output.ObjectStorage
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewLocationLoader creates a new location loader.
func NewLocationLoader(storage output.ObjectStorage, metrics output.MetricsCollector, logger *slog.Logger) *LocationLoader {
	return &LocationLoader{
		storage: storage,
		metrics: metrics,
		logger:  logger,
	}
}

// Load reads and parses the location list stored under key.
func (l *LocationLoader) Load(ctx context.Context, key string) ([]domain.Location, error) {
	if !output.IsLocationFile(key) {
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidLocations, filepath.Ext(key))
	}

	start := time.Now()
	rc, err := l.storage.GetReader(ctx, key)
	l.metrics.ObserveStorageDuration("read", time.Since(start))
	l.metrics.IncStorageOperations("read", err == nil)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()

	locations, err := ParseLocations(rc, filepath.Ext(key))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", key, err)
	}

	l.logger.Info("loaded locations", "key", key, "count", len(locations))

	return locations, nil
}

// ParseLocations parses a location list. ext selects the format. Names must
// be unique: they name the destination folder and every exported raster.
func ParseLocations(r io.Reader, ext string) ([]domain.Location, error) {
	var (
		locations []domain.Location
		err       error
	)
	switch strings.ToLower(ext) {
	case ".csv":
		locations, err = parseCSV(r)
	case ".yaml", ".yml", ".json":
		locations, err = parseYAML(r)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidLocations, ext)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]int, len(locations))
	for i, loc := range locations {
		if first, ok := seen[loc.Name]; ok {
			return nil, fmt.Errorf("%w: location %q at entries %d and %d", domain.ErrInvalidLocations, loc.Name, first+1, i+1)
		}
		seen[loc.Name] = i
	}
	return locations, nil
}

func parseCSV(r io.Reader) ([]domain.Location, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = 3

	var locations []domain.Location
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidLocations, err)
		}

		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if lonErr != nil || latErr != nil {
			if line == 1 && isHeader(record) {
				continue
			}
			return nil, fmt.Errorf("%w: line %d: invalid coordinate %q,%q",
				domain.ErrInvalidLocations, line, record[1], record[2])
		}

		locations = append(locations, domain.Location{
			Name: strings.TrimSpace(record[0]),
			Lon:  lon,
			Lat:  lat,
		})
	}
	return locations, nil
}

func isHeader(record []string) bool {
	lon := strings.ToLower(strings.TrimSpace(record[1]))
	lat := strings.ToLower(strings.TrimSpace(record[2]))
	return (lon == "lon" || lon == "longitude") && (lat == "lat" || lat == "latitude")
}

type locationEntry struct {
	Name string  `yaml:"name"`
	Lon  float64 `yaml:"lon"`
	Lat  float64 `yaml:"lat"`
}

type locationFile struct {
	Names      []string        `yaml:"names"`
	Longitudes []float64       `yaml:"longitudes"`
	Latitudes  []float64       `yaml:"latitudes"`
	Locations  []locationEntry `yaml:"locations"`
}

func parseYAML(r io.Reader) ([]domain.Location, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidLocations, err)
	}

	node := &root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}

	var entries []locationEntry
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&entries); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidLocations, err)
		}
	case yaml.MappingNode:
		var file locationFile
		if err := node.Decode(&file); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidLocations, err)
		}
		if len(file.Locations) > 0 {
			entries = file.Locations
			break
		}
		return domain.ZipLocations(file.Names, file.Longitudes, file.Latitudes)
	default:
		return nil, fmt.Errorf("%w: expected a list or a mapping", domain.ErrInvalidLocations)
	}

	locations := make([]domain.Location, len(entries))
	for i, e := range entries {
		locations[i] = domain.Location{Name: e.Name, Lon: e.Lon, Lat: e.Lat}
	}
	return locations, nil
}
