// Package profile holds the optional household context consumed by the
// advisory pipeline.
package profile

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// respiratoryPattern matches member conditions that warrant the
// air-quality safety clause.
var respiratoryPattern = regexp.MustCompile(`(?i)asthma|copd|respiratory|bronchitis|emphysema|allerg|lung`)

// ElderlyAge is the age threshold for the elderly safety clause.
const ElderlyAge = 60

// Member is one household member.
type Member struct {
	Name       string   `json:"name"`
	Relation   string   `json:"relation"`
	Age        int      `json:"age" validate:"gte=0,lte=150"`
	Conditions []string `json:"conditions"`
	Notes      string   `json:"notes"`
}

// Preferences control privacy gating and notifications.
type Preferences struct {
	ShareWithExternal    bool `json:"share_with_external"`
	ReceiveNotifications bool `json:"receive_notifications"`
}

// Profile is the household context. Saves append new versions; readers
// only ever see the most recent one.
type Profile struct {
	OwnerName   string      `json:"owner_name"`
	Members     []Member    `json:"members"`
	Preferences Preferences `json:"preferences"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// HasRespiratoryCondition reports whether any member has a condition
// matching the respiratory pattern.
func (p *Profile) HasRespiratoryCondition() bool {
	for _, m := range p.Members {
		for _, c := range m.Conditions {
			if respiratoryPattern.MatchString(c) {
				return true
			}
		}
	}
	return false
}

// HasElderlyMember reports whether any member is at or above ElderlyAge.
func (p *Profile) HasElderlyMember() bool {
	for _, m := range p.Members {
		if m.Age >= ElderlyAge {
			return true
		}
	}
	return false
}

// RedactedSummary flattens the household into a single sentence. Only
// this summary ever leaves the process; raw structured profile data is
// never sent to the external provider.
func (p *Profile) RedactedSummary() string {
	if len(p.Members) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		desc := m.Name
		if desc == "" {
			desc = "a member"
		}
		if m.Relation != "" {
			desc += " (" + m.Relation
			if m.Age > 0 {
				desc += fmt.Sprintf(", age %d", m.Age)
			}
			desc += ")"
		} else if m.Age > 0 {
			desc += fmt.Sprintf(" (age %d)", m.Age)
		}
		if len(m.Conditions) > 0 {
			desc += ", conditions: " + strings.Join(m.Conditions, "/")
		}
		parts = append(parts, desc)
	}
	return fmt.Sprintf("Household of %d: %s.", len(p.Members), strings.Join(parts, "; "))
}
