package embedding

import (
	"fmt"
	"strings"

	"github.com/eagleai/match-engine/internal/matching"
)

// CandidateText renders the canonical embedding document for a candidate.
// Field order is fixed so that semantically equal profiles produce identical
// text and therefore share a cache entry.
func CandidateText(c *matching.Candidate) string {
	var b strings.Builder

	writeField(&b, "Profile", c.Narrative)
	for _, group := range groupSkills(c.Skills) {
		writeField(&b, "Skills ("+group.category+")", strings.Join(group.names, ", "))
	}
	if c.Preferences != nil {
		writeField(&b, "Preferred categories", strings.Join(c.Preferences.Categories, ", "))
		writeField(&b, "Preferred employment", strings.Join(c.Preferences.EmploymentTypes, ", "))
		writeField(&b, "Preferred locations", strings.Join(c.Preferences.Locations, ", "))
		if c.Preferences.Remote {
			writeField(&b, "Remote", "open to remote work")
		}
	}
	if c.GraduationYear > 0 {
		writeField(&b, "Graduation year", fmt.Sprintf("%d", c.GraduationYear))
	}

	return strings.TrimSpace(b.String())
}

// PositionText renders the canonical embedding document for a position.
func PositionText(p *matching.Position) string {
	var b strings.Builder

	writeField(&b, "Title", p.Title)
	writeField(&b, "Organization", p.Organization)
	writeField(&b, "Categories", strings.Join(p.Categories, ", "))
	writeField(&b, "Employment", p.EmploymentType)
	writeField(&b, "Experience", string(p.ExperienceTier))
	if p.Remote {
		writeField(&b, "Location", "remote")
	} else {
		writeField(&b, "Location", p.Location)
	}
	writeField(&b, "Skills", strings.Join(p.Skills, ", "))
	writeField(&b, "Description", p.Description)

	return strings.TrimSpace(b.String())
}

func writeField(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

type skillGroup struct {
	category string
	names    []string
}

// groupSkills buckets skills by category keeping first-seen category order,
// so rendering stays deterministic without relying on map iteration.
func groupSkills(skills []matching.Skill) []skillGroup {
	groups := make([]skillGroup, 0)
	index := make(map[string]int)

	for _, skill := range skills {
		name := strings.TrimSpace(skill.Name)
		if name == "" {
			continue
		}

		category := strings.TrimSpace(skill.Category)
		if category == "" {
			category = "general"
		}

		i, ok := index[category]
		if !ok {
			index[category] = len(groups)
			groups = append(groups, skillGroup{category: category})
			i = len(groups) - 1
		}
		groups[i].names = append(groups[i].names, name)
	}

	return groups
}
