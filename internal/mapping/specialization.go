package mapping

import (
	"fmt"
	"strings"

	"expograph/internal/ingest"
)

// SpecializationMapping is the controlled vocabulary for classifying the
// free-text specialization field: raw text → canonical category, and
// canonical category → applicable streams. It is reference data, not
// graph-resident.
type SpecializationMapping struct {
	RawToCanonical     map[string]string
	CanonicalToStreams map[string][]string
}

// LoadRawToCanonical reads a two-column (Raw, Canonical) CSV
func LoadRawToCanonical(path string) (map[string]string, error) {
	table, err := ingest.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	if !table.HasColumn("Raw") || !table.HasColumn("Canonical") {
		return nil, fmt.Errorf("%s must have Raw and Canonical columns", path)
	}

	m := make(map[string]string, table.Len())
	for i := 0; i < table.Len(); i++ {
		raw := strings.TrimSpace(table.Get(i, "Raw"))
		canonical := strings.TrimSpace(table.Get(i, "Canonical"))
		if raw == "" || canonical == "" {
			continue
		}
		m[raw] = canonical
	}
	return m, nil
}

// LoadCanonicalToStreams reads the category/stream matrix: the first column
// holds the canonical category, every other column is a stream name, and a
// "YES" cell marks the stream as applicable. The matrix is pivoted into a
// category → streams map.
func LoadCanonicalToStreams(path string) (map[string][]string, error) {
	table, err := ingest.ReadCSV(path)
	if err != nil {
		return nil, err
	}
	if len(table.Columns) < 2 {
		return nil, fmt.Errorf("%s must have a category column and at least one stream column", path)
	}

	categoryCol := table.Columns[0]
	streamCols := table.Columns[1:]

	m := make(map[string][]string, table.Len())
	for i := 0; i < table.Len(); i++ {
		category := strings.TrimSpace(table.Get(i, categoryCol))
		if category == "" {
			continue
		}
		var streams []string
		for _, stream := range streamCols {
			if strings.EqualFold(strings.TrimSpace(table.Get(i, stream)), "YES") {
				streams = append(streams, stream)
			}
		}
		if len(streams) > 0 {
			m[category] = streams
		}
	}
	return m, nil
}

// Load reads both mapping files into one SpecializationMapping
func Load(rawToCanonicalPath, canonicalToStreamsPath string) (*SpecializationMapping, error) {
	rawToCanonical, err := LoadRawToCanonical(rawToCanonicalPath)
	if err != nil {
		return nil, err
	}
	canonicalToStreams, err := LoadCanonicalToStreams(canonicalToStreamsPath)
	if err != nil {
		return nil, err
	}
	return &SpecializationMapping{
		RawToCanonical:     rawToCanonical,
		CanonicalToStreams: canonicalToStreams,
	}, nil
}

// StreamsFor resolves one raw specialization string to its applicable
// streams. The raw value may hold several semicolon-delimited fragments;
// fragments are de-duplicated before mapping so a repeated fragment cannot
// inflate the potential-edge statistics. Fragments absent from the raw →
// canonical map pass through as their own canonical form.
func (m *SpecializationMapping) StreamsFor(rawValue string) []string {
	seenFragments := make(map[string]bool)
	seenStreams := make(map[string]bool)
	var streams []string

	for _, fragment := range strings.Split(rawValue, ";") {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		lower := strings.ToLower(fragment)
		if seenFragments[lower] {
			continue
		}
		seenFragments[lower] = true

		canonical, ok := m.RawToCanonical[fragment]
		if !ok {
			canonical = fragment
		}
		for _, stream := range m.CanonicalToStreams[canonical] {
			key := strings.ToLower(stream)
			if !seenStreams[key] {
				seenStreams[key] = true
				streams = append(streams, stream)
			}
		}
	}
	return streams
}
