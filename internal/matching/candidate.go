package matching

import "time"

// Candidate is the profile subset the engine needs for scoring and retrieval.
// The full profile lives in the platform's CRUD service; this view is read-only
// except for the embedding columns.
type Candidate struct {
	ID             string       `json:"id"`
	FullName       string       `json:"full_name,omitempty"`
	GraduationYear int          `json:"graduation_year,omitempty"`
	Narrative      string       `json:"narrative,omitempty"`
	Skills         []Skill      `json:"skills,omitempty"`
	Preferences    *Preferences `json:"preferences,omitempty"`
	Active         bool         `json:"active"`
	Embedding      []float32    `json:"-"`
	EmbeddedAt     time.Time    `json:"embedded_at,omitempty"`
}

type Skill struct {
	Name        string `json:"name"`
	Proficiency int    `json:"proficiency,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Preferences narrows the position pool for a candidate. Empty slices mean
// no preference for that dimension.
type Preferences struct {
	Categories      []string `json:"categories,omitempty"`
	EmploymentTypes []string `json:"employment_types,omitempty"`
	Locations       []string `json:"locations,omitempty"`
	Remote          bool     `json:"remote,omitempty"`
}

// SkillNames returns the candidate skill names in declaration order.
func (c *Candidate) SkillNames() []string {
	if len(c.Skills) == 0 {
		return nil
	}
	names := make([]string, 0, len(c.Skills))
	for _, s := range c.Skills {
		names = append(names, s.Name)
	}
	return names
}

// YearsToGraduation is the signed distance to the target graduation year.
// Zero GraduationYear means the marker is unknown.
func (c *Candidate) YearsToGraduation(now time.Time) (int, bool) {
	if c.GraduationYear == 0 {
		return 0, false
	}
	return c.GraduationYear - now.Year(), true
}

// HasEmbedding reports whether a vector is present.
func (c *Candidate) HasEmbedding() bool {
	return len(c.Embedding) > 0
}
