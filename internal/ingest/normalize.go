package ingest

import (
	"strings"
	"unicode"

	"go.uber.org/zap"

	"expograph/pkg/logger"
)

// Column names shared across the scan, reference and registration extracts
const (
	ColBadgeID   = "BadgeId"
	ColShortName = "ShortName"
	ColTitle     = "Title"
	ColKeyText   = "key_text"
	ColScanTime  = "ScanTime"
)

// DefaultDemographicColumns is the allow-list of registration columns
// projected onto enriched scan rows
var DefaultDemographicColumns = []string{
	"Email",
	"JobTitle",
	"Specialization",
	"OrganisationType",
	"Country",
}

// MatchKey derives the normalized key used to link records lacking a shared
// identifier: all non-alphanumeric characters removed, lower-cased. The key
// is invariant under case and punctuation changes, so "Dr. Smith's Talk!"
// and "dr smiths talk" collide on purpose.
func MatchKey(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// NormalizeStats are health metrics surfaced by a normalizer run. They are
// operational signals, not control flow: a 40% key-match rate is expected
// for cross-system free-text matching and is not itself an error.
type NormalizeStats struct {
	ScanRows         int
	ReferenceRows    int
	RegistrationRows int

	TitleMatched  int
	TitleMatchPct float64

	ScanKeyCount    int
	SessionKeyCount int
	KeyOverlap      int

	ScanBadgeCount         int
	RegistrationBadgeCount int
	BadgeOverlap           int

	RegistrationMatched  int
	RegistrationMatchPct float64
}

// Normalizer cross-matches scan rows with the session catalog and the
// registration demographics. There is no stable identifier shared between
// the scan system and the session catalog; the normalized match key is the
// sole basis for linking them.
type Normalizer struct {
	DemographicColumns []string
	logger             *zap.Logger
}

// NewNormalizer creates a normalizer with the default demographic allow-list
func NewNormalizer() *Normalizer {
	return &Normalizer{
		DemographicColumns: DefaultDemographicColumns,
		logger:             logger.Get(),
	}
}

// Normalize joins scans to the session reference and the registration
// extract, producing the enriched flat table consumed by the graph loaders.
// Unmatched scan rows are kept with null fields: seminar-only attendance is
// still meaningful.
func (n *Normalizer) Normalize(scans, sessionRef, registrations *Table) (*Table, *NormalizeStats, error) {
	stats := &NormalizeStats{
		ScanRows:         scans.Len(),
		ReferenceRows:    sessionRef.Len(),
		RegistrationRows: registrations.Len(),
	}

	// Short-name → full-title reference lookup. Reference data is assumed
	// deduplicated upstream; on duplicate short names the first row wins.
	titles := make(map[string]string, sessionRef.Len())
	sessionKeys := make(map[string]bool, sessionRef.Len())
	for i := 0; i < sessionRef.Len(); i++ {
		short := sessionRef.Get(i, ColShortName)
		title := sessionRef.Get(i, ColTitle)
		if short != "" {
			if _, seen := titles[short]; !seen {
				titles[short] = title
			}
		}
		if key := MatchKey(title); key != "" {
			sessionKeys[key] = true
		}
	}
	stats.SessionKeyCount = len(sessionKeys)

	// Registration demographics keyed by badge, projected through the
	// allow-list. First registration row per badge wins.
	demographics := make(map[string]map[string]string, registrations.Len())
	for i := 0; i < registrations.Len(); i++ {
		badge := registrations.Get(i, ColBadgeID)
		if badge == "" {
			continue
		}
		if _, seen := demographics[badge]; seen {
			continue
		}
		fields := make(map[string]string, len(n.DemographicColumns))
		for _, col := range n.DemographicColumns {
			fields[col] = registrations.Get(i, col)
		}
		demographics[badge] = fields
	}
	stats.RegistrationBadgeCount = len(demographics)

	columns := []string{ColBadgeID, ColShortName, ColTitle, ColKeyText, ColScanTime}
	columns = append(columns, n.DemographicColumns...)
	enriched := NewTable("enriched_scans", columns)

	scanKeys := make(map[string]bool, scans.Len())
	scanBadges := make(map[string]bool, scans.Len())
	for i := 0; i < scans.Len(); i++ {
		badge := scans.Get(i, ColBadgeID)
		short := scans.Get(i, ColShortName)

		// Left join to the reference: unmatched titles stay null and the
		// key falls back to the scan-derived short name.
		title, matched := titles[short]
		key := MatchKey(title)
		if key == "" {
			key = MatchKey(short)
		}
		if matched && title != "" {
			stats.TitleMatched++
		}
		if key != "" {
			scanKeys[key] = true
		}
		if badge != "" {
			scanBadges[badge] = true
		}

		row := map[string]string{
			ColBadgeID:   badge,
			ColShortName: short,
			ColTitle:     title,
			ColKeyText:   key,
			ColScanTime:  scans.Get(i, ColScanTime),
		}
		if fields, ok := demographics[badge]; ok {
			stats.RegistrationMatched++
			for col, val := range fields {
				row[col] = val
			}
		}
		enriched.AppendRow(row)
	}
	stats.ScanKeyCount = len(scanKeys)
	stats.ScanBadgeCount = len(scanBadges)

	for key := range scanKeys {
		if sessionKeys[key] {
			stats.KeyOverlap++
		}
	}
	for badge := range scanBadges {
		if _, ok := demographics[badge]; ok {
			stats.BadgeOverlap++
		}
	}
	if stats.ScanRows > 0 {
		stats.TitleMatchPct = 100.0 * float64(stats.TitleMatched) / float64(stats.ScanRows)
		stats.RegistrationMatchPct = 100.0 * float64(stats.RegistrationMatched) / float64(stats.ScanRows)
	}

	n.logger.Info("Scan extract normalized",
		zap.Int("scan_rows", stats.ScanRows),
		zap.Int("title_matched", stats.TitleMatched),
		zap.Float64("title_match_pct", stats.TitleMatchPct),
		zap.Int("key_overlap", stats.KeyOverlap),
		zap.Int("badge_overlap", stats.BadgeOverlap),
		zap.Float64("registration_match_pct", stats.RegistrationMatchPct),
	)

	return enriched, stats, nil
}
