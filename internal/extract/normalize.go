package extract

import (
	"fmt"
	"strings"

	"metacurator/internal/document"
)

const (
	placeholderEmail    = "unknown@example.com"
	defaultRelationType = "IsSupplementTo"
	orcidScheme         = "ORCID"
)

// normalizeUpdates rewrites the raw field-update map into canonical shapes
// before the merge. The input map is not modified.
func normalizeUpdates(raw map[string]any) map[string]any {
	updates := make(map[string]any, len(raw))
	for key, value := range raw {
		updates[key] = value
	}

	normalizeFlatContact(updates)

	for key, value := range updates {
		switch key {
		case document.FieldSoftware:
			updates[key] = normalizeSoftware(value)
		case document.FieldAbstract:
			updates[key] = coerceString(value)
		case document.FieldDescription, document.FieldKeywords:
			updates[key] = wrapStringList(value)
		case document.FieldKindOfData:
			updates[key] = collapseToScalar(value)
		case document.FieldContacts:
			updates[key] = normalizeContacts(value)
		case document.FieldRelatedPublications, document.FieldRelatedDatasets:
			updates[key] = normalizeRelated(value)
		case document.FieldAuthors:
			updates[key] = normalizeAuthors(value)
		case document.FieldFunding:
			updates[key] = normalizeFunding(value)
		}
	}

	normalizeShortTitle(updates)
	normalizeContributors(updates)

	return updates
}

// asRecordList coerces a value to a list, wrapping a single record.
func asRecordList(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case map[string]any, string:
		return []any{v}
	default:
		return nil
	}
}

func coerceString(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, "\n")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func wrapStringList(value any) any {
	if s, ok := value.(string); ok {
		return []any{s}
	}
	return value
}

// collapseToScalar reduces a list to its first element, as a string or nil.
func collapseToScalar(value any) any {
	list, ok := value.([]any)
	if !ok {
		return value
	}
	if len(list) == 0 {
		return nil
	}
	return fmt.Sprintf("%v", list[0])
}

func normalizeSoftware(value any) any {
	list := asRecordList(value)
	if list == nil {
		return value
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			name, _ := v["name"].(string)
			if name == "" {
				continue
			}
			if version := fmt.Sprintf("%v", v["version"]); v["version"] != nil && version != "" {
				out = append(out, name+" "+version)
			} else {
				out = append(out, name)
			}
		default:
			out = append(out, fmt.Sprintf("%v", v))
		}
	}
	return out
}

// collapseAffiliation joins list-valued affiliation(s) into one string under
// the canonical "affiliation" key.
func collapseAffiliation(record map[string]any) {
	for _, key := range []string{"affiliation", "affiliations"} {
		value, ok := record[key]
		if !ok {
			continue
		}
		if list, isList := value.([]any); isList {
			parts := make([]string, 0, len(list))
			for _, item := range list {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			value = strings.Join(parts, ", ")
		}
		delete(record, key)
		record["affiliation"] = value
	}
}

func normalizeContacts(value any) any {
	list := asRecordList(value)
	if list == nil {
		return value
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		var record map[string]any
		switch v := item.(type) {
		case string:
			record = map[string]any{"name": v}
		case map[string]any:
			record = v
		default:
			continue
		}
		if legacy, ok := record["contact"]; ok {
			delete(record, "contact")
			if _, exists := record["name"]; !exists {
				record["name"] = legacy
			}
		}
		collapseAffiliation(record)
		if email, _ := record["email"].(string); email == "" {
			record["email"] = placeholderEmail
		}
		out = append(out, record)
	}
	return out
}

// normalizeFlatContact folds the legacy flattened contact_name/contact_email
// shape into a contacts entry.
func normalizeFlatContact(updates map[string]any) {
	name, hasName := updates["contact_name"]
	email, hasEmail := updates["contact_email"]
	if !hasName && !hasEmail {
		return
	}
	delete(updates, "contact_name")
	delete(updates, "contact_email")

	record := map[string]any{}
	if hasName {
		record["name"] = name
	}
	if hasEmail {
		record["email"] = email
	}
	existing := asRecordList(updates[document.FieldContacts])
	updates[document.FieldContacts] = append(existing, record)
}

func normalizeRelated(value any) any {
	list := asRecordList(value)
	if list == nil {
		return value
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		var record map[string]any
		switch v := item.(type) {
		case string:
			record = map[string]any{"title": v}
		case map[string]any:
			record = v
		default:
			continue
		}
		if title, _ := record["title"].(string); title == "" {
			continue // entries without a title carry no useful reference
		}
		if _, ok := record["relation_type"]; !ok {
			record["relation_type"] = defaultRelationType
		}
		if authors, ok := record["authors"].([]any); ok {
			parts := make([]string, 0, len(authors))
			for _, author := range authors {
				parts = append(parts, fmt.Sprintf("%v", author))
			}
			record["authors"] = strings.Join(parts, ", ")
		}
		out = append(out, record)
	}
	return out
}

func normalizeAuthors(value any) any {
	list := asRecordList(value)
	if list == nil {
		return value
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, map[string]any{"name": v})
		case map[string]any:
			if orcid, ok := v["orcid"]; ok {
				delete(v, "orcid")
				v["identifier"] = orcid
				if _, hasScheme := v["identifier_scheme"]; !hasScheme {
					v["identifier_scheme"] = orcidScheme
				}
			}
			collapseAffiliation(v)
			out = append(out, v)
		}
	}
	return out
}

func normalizeShortTitle(updates map[string]any) {
	shortTitle, ok := updates["short_title"]
	if !ok {
		return
	}
	delete(updates, "short_title")
	title, _ := shortTitle.(string)
	if title == "" {
		return
	}
	existing, _ := updates[document.FieldAlternativeTitles].([]any)
	updates[document.FieldAlternativeTitles] = append(existing, title)
}

func normalizeFunding(value any) any {
	list := asRecordList(value)
	if list == nil {
		return value
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, map[string]any{"agency": v})
		case map[string]any:
			if number, ok := v["grant_number"]; ok {
				delete(v, "grant_number")
				if _, exists := v["award_number"]; !exists {
					v["award_number"] = number
				}
			}
			out = append(out, v)
		}
	}
	return out
}

// normalizeContributors renders contributors into free-text notes; the
// document has no native contributors field.
func normalizeContributors(updates map[string]any) {
	value, ok := updates["contributors"]
	if !ok {
		return
	}
	delete(updates, "contributors")

	list := asRecordList(value)
	parts := make([]string, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			parts = append(parts, v)
		case map[string]any:
			name, _ := v["name"].(string)
			if name == "" {
				continue
			}
			if kind, _ := v["type"].(string); kind != "" {
				parts = append(parts, fmt.Sprintf("%s (%s)", name, kind))
			} else {
				parts = append(parts, name)
			}
		}
	}
	if len(parts) == 0 {
		return
	}
	line := "Contributors: " + strings.Join(parts, ", ")
	if notes, _ := updates[document.FieldNotes].(string); notes != "" {
		updates[document.FieldNotes] = notes + "\n" + line
	} else {
		updates[document.FieldNotes] = line
	}
}
