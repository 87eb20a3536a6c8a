package graph

// Node labels. Visitor and Session labels exist per edition; Stream is shared.
const (
	LabelVisitor          = "Visitor"          // current edition
	LabelVisitorLastYear  = "VisitorLastYear"  // past edition A
	LabelVisitorPriorYear = "VisitorPriorYear" // past edition B
	LabelSession          = "Session"          // current edition
	LabelSessionLastYear  = "SessionLastYear"  // past edition
	LabelStream           = "Stream"
)

// Relationship types
const (
	RelAttendedSession        = "ATTENDED_SESSION"
	RelSpecializationToStream = "SPECIALIZATION_TO_STREAM"
	RelSessionStream          = "SESSION_STREAM"
	RelSameVisitor            = "SAME_VISITOR"
)

// Key properties carrying the uniqueness constraint per label
const (
	KeyBadgeID   = "badge_id"
	KeySessionID = "session_id"
	KeyStream    = "name"
)

// Edition tags carried on SAME_VISITOR relationships
const (
	EditionLastYear  = "last_year"
	EditionPriorYear = "prior_year"
)

// VisitorLabels lists every visitor label, current edition first
func VisitorLabels() []string {
	return []string{LabelVisitor, LabelVisitorLastYear, LabelVisitorPriorYear}
}

// SessionLabels lists every session label, current edition first
func SessionLabels() []string {
	return []string{LabelSession, LabelSessionLastYear}
}

// PastVisitorEditions maps each past visitor label to its edition tag
func PastVisitorEditions() map[string]string {
	return map[string]string{
		LabelVisitorLastYear:  EditionLastYear,
		LabelVisitorPriorYear: EditionPriorYear,
	}
}

// Stream is a topical category used to tag sessions and recommend content
type Stream struct {
	Name        string
	Description string
}

// SessionText carries the text fields an embedding is computed from
type SessionText struct {
	ID       string
	Title    string
	Synopsis string
	Venue    string
	KeyText  string
	Streams  string
}

// Recommendation is one session suggested for a visitor
type Recommendation struct {
	SessionID string   `json:"session_id"`
	Title     string   `json:"title"`
	Streams   []string `json:"streams"`
	Score     float64  `json:"score,omitempty"`
}
