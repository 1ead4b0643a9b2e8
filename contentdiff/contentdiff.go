// Package contentdiff decides whether two content payloads differ in a way
// that is meaningful to readers.
//
// The comparison is structural: sub-collections are compared by value in
// display order, never by identity, because the merger mints fresh ids for
// owned children on every replace. Non-functional fields (the source-side
// Modified timestamp) are excluded. Keywords and authority lists are
// logically unordered and compared as sets.
package contentdiff

import "github.com/hazyhaar/snapfold/store"

// Changed reports whether before and after differ functionally.
// Pure and symmetric: Changed(a, b) == Changed(b, a).
func Changed(before, after *store.Content) bool {
	if before == nil {
		before = &store.Content{}
	}
	if after == nil {
		after = &store.Content{}
	}

	switch {
	case before.Title != after.Title,
		before.Description != after.Description,
		before.SourceConcept != after.SourceConcept,
		!equalSets(before.Keywords, after.Keywords),
		!equalSets(before.CompetentAuthorities, after.CompetentAuthorities),
		!equalSets(before.ExecutingAuthorities, after.ExecutingAuthorities),
		!equalRequirements(before.Requirements, after.Requirements),
		!equalProcedures(before.Procedures, after.Procedures),
		!equalCosts(before.Costs, after.Costs),
		!equalFinancialAdvantages(before.FinancialAdvantages, after.FinancialAdvantages),
		!equalLegalResources(before.LegalResources, after.LegalResources),
		!equalWebsites(before.Websites, after.Websites):
		return true
	}
	return false
}

// equalSets compares string slices ignoring order and duplicates.
func equalSets(a, b []string) bool {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	other := make(map[string]bool, len(b))
	for _, s := range b {
		if !seen[s] {
			return false
		}
		other[s] = true
	}
	for s := range seen {
		if !other[s] {
			return false
		}
	}
	return true
}

func equalRequirements(a, b []store.Requirement) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Title != b[i].Title ||
			a[i].Description != b[i].Description ||
			a[i].Order != b[i].Order ||
			!equalEvidence(a[i].Evidence, b[i].Evidence) {
			return false
		}
	}
	return true
}

func equalEvidence(a, b *store.Evidence) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Title == b.Title && a.Description == b.Description
}

func equalProcedures(a, b []store.Procedure) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Title != b[i].Title ||
			a[i].Description != b[i].Description ||
			a[i].Order != b[i].Order ||
			!equalWebsites(a[i].Websites, b[i].Websites) {
			return false
		}
	}
	return true
}

func equalCosts(a, b []store.Cost) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Title != b[i].Title ||
			a[i].Description != b[i].Description ||
			a[i].Order != b[i].Order {
			return false
		}
	}
	return true
}

func equalFinancialAdvantages(a, b []store.FinancialAdvantage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Title != b[i].Title ||
			a[i].Description != b[i].Description ||
			a[i].Order != b[i].Order {
			return false
		}
	}
	return true
}

func equalLegalResources(a, b []store.LegalResource) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Title != b[i].Title ||
			a[i].Description != b[i].Description ||
			a[i].URL != b[i].URL ||
			a[i].Order != b[i].Order {
			return false
		}
	}
	return true
}

func equalWebsites(a, b []store.Website) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Title != b[i].Title ||
			a[i].Description != b[i].Description ||
			a[i].URL != b[i].URL ||
			a[i].Order != b[i].Order {
			return false
		}
	}
	return true
}
