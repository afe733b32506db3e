package application

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

func TestParseLocations(t *testing.T) {
	want := []domain.Location{
		{Name: "sf", Lon: -122.4, Lat: 37.8},
		{Name: "berlin", Lon: 13.4, Lat: 52.5},
	}

	tests := []struct {
		name string
		ext  string
		body string
	}{
		{
			name: "csv without header",
			ext:  ".csv",
			body: "sf,-122.4,37.8\nberlin,13.4,52.5\n",
		},
		{
			name: "csv with header and comments",
			ext:  ".CSV",
			body: "# test sites\nname,lon,lat\nsf, -122.4, 37.8\nberlin, 13.4, 52.5\n",
		},
		{
			name: "yaml parallel lists",
			ext:  ".yaml",
			body: "names: [sf, berlin]\nlongitudes: [-122.4, 13.4]\nlatitudes: [37.8, 52.5]\n",
		},
		{
			name: "yaml list",
			ext:  ".yml",
			body: "- name: sf\n  lon: -122.4\n  lat: 37.8\n- name: berlin\n  lon: 13.4\n  lat: 52.5\n",
		},
		{
			name: "yaml locations key",
			ext:  ".yaml",
			body: "locations:\n  - {name: sf, lon: -122.4, lat: 37.8}\n  - {name: berlin, lon: 13.4, lat: 52.5}\n",
		},
		{
			name: "json parallel lists",
			ext:  ".json",
			body: `{"names": ["sf", "berlin"], "longitudes": [-122.4, 13.4], "latitudes": [37.8, 52.5]}`,
		},
		{
			name: "json list",
			ext:  ".json",
			body: `[{"name": "sf", "lon": -122.4, "lat": 37.8}, {"name": "berlin", "lon": 13.4, "lat": 52.5}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocations(strings.NewReader(tt.body), tt.ext)
			if err != nil {
				t.Fatalf("ParseLocations() error = %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("ParseLocations() = %v, want %v", got, want)
			}
		})
	}
}

func TestParseLocationsErrors(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		body string
	}{
		{"unsupported extension", ".txt", "sf,1,2"},
		{"csv wrong field count", ".csv", "sf,1\n"},
		{"csv bad number", ".csv", "sf,1,2\nla,x,3\n"},
		{"parallel lists differ", ".yaml", "names: [a, b]\nlongitudes: [1]\nlatitudes: [2, 3]\n"},
		{"scalar document", ".yaml", "hello\n"},
		{"broken json", ".json", `{"names": [`},
		{"duplicate csv name", ".csv", "sf,1,2\nla,3,4\nsf,5,6\n"},
		{"duplicate parallel list name", ".yaml", "names: [a, a]\nlongitudes: [1, 2]\nlatitudes: [3, 4]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLocations(strings.NewReader(tt.body), tt.ext)
			if !errors.Is(err, domain.ErrInvalidLocations) {
				t.Errorf("ParseLocations() error = %v, want ErrInvalidLocations", err)
			}
		})
	}
}

func TestParseLocationsEmpty(t *testing.T) {
	for _, ext := range []string{".csv", ".yaml", ".json"} {
		got, err := ParseLocations(strings.NewReader(""), ext)
		if err != nil {
			t.Errorf("%s: error = %v", ext, err)
		}
		if len(got) != 0 {
			t.Errorf("%s: got %d locations, want 0", ext, len(got))
		}
	}
}

func TestLocationLoaderLoad(t *testing.T) {
	storage := &mockStorage{files: map[string]string{
		"sites.csv":  "a,1,2\nb,3,4\nc,5,6\n",
		"dupes.csv":  "a,1,2\nb,3,4\na,5,6\n",
		"notes.txt":  "nothing",
		"broken.csv": "a,1\n",
	}}
	loader := NewLocationLoader(storage, &output.NoOpMetrics{}, testLogger())
	ctx := context.Background()

	locs, err := loader.Load(ctx, "sites.csv")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(locs) != 3 {
		t.Errorf("got %d locations, want 3", len(locs))
	}

	if _, err := loader.Load(ctx, "dupes.csv"); !errors.Is(err, domain.ErrInvalidLocations) {
		t.Errorf("Load(dupes.csv) error = %v, want ErrInvalidLocations", err)
	}

	if _, err := loader.Load(ctx, "notes.txt"); !errors.Is(err, domain.ErrInvalidLocations) {
		t.Errorf("Load(notes.txt) error = %v, want ErrInvalidLocations", err)
	}
	if _, err := loader.Load(ctx, "broken.csv"); !errors.Is(err, domain.ErrInvalidLocations) {
		t.Errorf("Load(broken.csv) error = %v, want ErrInvalidLocations", err)
	}
	if _, err := loader.Load(ctx, "missing.csv"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Load(missing.csv) error = %v, want ErrNotFound", err)
	}
}
