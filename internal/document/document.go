package document

import (
	"fmt"
	"reflect"
	"sort"
)

// Canonical field names used across the extraction and merge pipeline.
const (
	FieldTitle               = "title"
	FieldAlternativeTitles   = "alternative_titles"
	FieldAuthors             = "authors"
	FieldContacts            = "contacts"
	FieldDescription         = "description"
	FieldAbstract            = "abstract"
	FieldKeywords            = "keywords"
	FieldSoftware            = "software"
	FieldKindOfData          = "kind_of_data"
	FieldLicense             = "license"
	FieldNotes               = "notes"
	FieldFunding             = "funding"
	FieldRelatedPublications = "related_publications"
	FieldRelatedDatasets     = "related_datasets"
)

// MandatoryFields are the fields a dataset needs before it can be packaged.
var MandatoryFields = []string{
	FieldTitle, FieldAuthors, FieldDescription, FieldLicense, FieldKeywords,
}

// recordListFields hold ordered lists of sub-records (string-keyed maps).
var recordListFields = map[string]bool{
	FieldAuthors:             true,
	FieldContacts:            true,
	FieldFunding:             true,
	FieldRelatedPublications: true,
	FieldRelatedDatasets:     true,
}

// stringListFields hold ordered lists of plain strings.
var stringListFields = map[string]bool{
	FieldAlternativeTitles: true,
	FieldDescription:       true,
	FieldKeywords:          true,
	FieldSoftware:          true,
}

// humanNames maps canonical field names to the labels shown to the user.
var humanNames = map[string]string{
	FieldTitle:               "Title",
	FieldAlternativeTitles:   "Alternative titles",
	FieldAuthors:             "Authors",
	FieldContacts:            "Contacts",
	FieldDescription:         "Description",
	FieldAbstract:            "Abstract",
	FieldKeywords:            "Keywords",
	FieldSoftware:            "Software",
	FieldKindOfData:          "Kind of data",
	FieldLicense:             "License",
	FieldNotes:               "Notes",
	FieldFunding:             "Funding",
	FieldRelatedPublications: "Related publications",
	FieldRelatedDatasets:     "Related datasets",
}

// HumanName returns the display label for a field, falling back to the raw name.
func HumanName(field string) string {
	if label, ok := humanNames[field]; ok {
		return label
	}
	return field
}

// Document is a sparse metadata record: only fields that were explicitly set
// exist in Fields, and only those participate in merges. Locked holds field
// names the user pinned; extraction-driven writes must never touch them.
//
// Document values are owned by the caller. Core components receive one,
// derive a new value, and hand it back; they never mutate the input.
type Document struct {
	Fields map[string]any
	Locked map[string]struct{}
}

// New returns an empty document.
func New() Document {
	return Document{
		Fields: map[string]any{},
		Locked: map[string]struct{}{},
	}
}

// FromFields validates fields and builds a document from them.
func FromFields(fields map[string]any) (Document, error) {
	doc := New()
	for name, value := range fields {
		if err := validateField(name, value); err != nil {
			return Document{}, err
		}
		doc.Fields[name] = value
	}
	return doc, nil
}

// Clone returns a deep-enough copy: the field and lock maps are fresh, list
// and record values are copied one level down so callers can append safely.
func (d Document) Clone() Document {
	out := New()
	for name, value := range d.Fields {
		out.Fields[name] = cloneValue(value)
	}
	for name := range d.Locked {
		out.Locked[name] = struct{}{}
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case []any:
		list := make([]any, len(v))
		for i, item := range v {
			list[i] = cloneValue(item)
		}
		return list
	case []string:
		return append([]string(nil), v...)
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, item := range v {
			m[k] = cloneValue(item)
		}
		return m
	default:
		return value
	}
}

// Set stores a field value without validation. Use FromFields when the value
// comes from an untrusted source.
func (d *Document) Set(name string, value any) {
	if d.Fields == nil {
		d.Fields = map[string]any{}
	}
	d.Fields[name] = value
}

// Get returns the value of a field and whether it was set.
func (d Document) Get(name string) (any, bool) {
	value, ok := d.Fields[name]
	return value, ok
}

// Lock pins a field against extraction-driven writes.
func (d *Document) Lock(name string) {
	if d.Locked == nil {
		d.Locked = map[string]struct{}{}
	}
	d.Locked[name] = struct{}{}
}

// Unlock removes a pin.
func (d *Document) Unlock(name string) {
	delete(d.Locked, name)
}

// IsLocked reports whether a field is pinned.
func (d Document) IsLocked(name string) bool {
	_, ok := d.Locked[name]
	return ok
}

// SetFields returns the names of all set fields in sorted order.
func (d Document) SetFields() []string {
	names := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether two documents carry the same fields and locks.
func (d Document) Equal(other Document) bool {
	if len(d.Fields) != len(other.Fields) || len(d.Locked) != len(other.Locked) {
		return false
	}
	for name := range d.Locked {
		if _, ok := other.Locked[name]; !ok {
			return false
		}
	}
	return reflect.DeepEqual(normalizeEmpty(d.Fields), normalizeEmpty(other.Fields))
}

func normalizeEmpty(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	return fields
}

// Validate checks every set field against the known shape table.
func (d Document) Validate() error {
	for name, value := range d.Fields {
		if err := validateField(name, value); err != nil {
			return err
		}
	}
	return nil
}

func validateField(name string, value any) error {
	switch {
	case recordListFields[name]:
		list, ok := value.([]any)
		if !ok {
			return fmt.Errorf("field %s: expected a list of records, got %T", name, value)
		}
		for i, item := range list {
			if _, ok := item.(map[string]any); !ok {
				return fmt.Errorf("field %s[%d]: expected a record, got %T", name, i, item)
			}
		}
	case stringListFields[name]:
		list, ok := value.([]any)
		if !ok {
			return fmt.Errorf("field %s: expected a list of strings, got %T", name, value)
		}
		for i, item := range list {
			if _, ok := item.(string); !ok {
				return fmt.Errorf("field %s[%d]: expected a string, got %T", name, i, item)
			}
		}
	default:
		switch value.(type) {
		case string, bool, int, int64, float64, []any, map[string]any, nil:
		default:
			return fmt.Errorf("field %s: unsupported value type %T", name, value)
		}
	}
	return nil
}
