package domain

import (
	"sort"

	dErrors "medihub/pkg/domain-errors"
)

// Scope is a named category of protected data used to partition consent
// grants. The set is closed; consents persist their granted scopes as a JSON
// array of these values.
type Scope string

const (
	ScopeDemographics  Scope = "DEMOGRAPHICS"
	ScopeEncounters    Scope = "ENCOUNTERS"
	ScopeLabs          Scope = "LABS"
	ScopePrescriptions Scope = "PRESCRIPTIONS"
	ScopeNotes         Scope = "NOTES"
	ScopeDocuments     Scope = "DOCUMENTS"
)

var validScopes = map[Scope]bool{
	ScopeDemographics:  true,
	ScopeEncounters:    true,
	ScopeLabs:          true,
	ScopePrescriptions: true,
	ScopeNotes:         true,
	ScopeDocuments:     true,
}

// AllScopes returns every defined scope in stable order. Used when a caller
// requests "everything" (e.g. an unfiltered record listing).
func AllScopes() ScopeSet {
	return ScopeSet{
		ScopeDemographics,
		ScopeEncounters,
		ScopeLabs,
		ScopePrescriptions,
		ScopeNotes,
		ScopeDocuments,
	}
}

func (s Scope) IsValid() bool  { return validScopes[s] }
func (s Scope) String() string { return string(s) }

// ScopeSet is an ordered, duplicate-free set of scopes.
type ScopeSet []Scope

// ParseScopeSet validates raw scope strings from external input. An empty
// input is rejected; consent checks are always against at least one scope.
func ParseScopeSet(raw []string) (ScopeSet, error) {
	if len(raw) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "scopes cannot be empty")
	}
	seen := make(map[Scope]bool, len(raw))
	set := make(ScopeSet, 0, len(raw))
	for _, r := range raw {
		s := Scope(r)
		if !s.IsValid() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid scope: "+r)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		set = append(set, s)
	}
	return set, nil
}

func (ss ScopeSet) Contains(s Scope) bool {
	for _, have := range ss {
		if have == s {
			return true
		}
	}
	return false
}

// SubsetOf reports whether every scope in ss is present in other. The consent
// engine uses this for its all-or-nothing check: a requested set must fit
// entirely inside a single consent's granted set.
func (ss ScopeSet) SubsetOf(other ScopeSet) bool {
	for _, want := range ss {
		if !other.Contains(want) {
			return false
		}
	}
	return true
}

// Strings returns the set as sorted strings for stable serialization.
func (ss ScopeSet) Strings() []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	sort.Strings(out)
	return out
}
