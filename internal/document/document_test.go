package document

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromFieldsValidatesShapes(t *testing.T) {
	_, err := FromFields(map[string]any{
		FieldAuthors: []any{map[string]any{"name": "A"}},
		FieldTitle:   "T",
	})
	require.NoError(t, err)

	_, err = FromFields(map[string]any{FieldAuthors: "not a list"})
	require.Error(t, err)

	_, err = FromFields(map[string]any{FieldAuthors: []any{"bare string"}})
	require.Error(t, err)

	_, err = FromFields(map[string]any{FieldKeywords: []any{"ok", 7}})
	require.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	doc := New()
	doc.Set(FieldKeywords, []any{"a"})
	doc.Lock(FieldKeywords)

	clone := doc.Clone()
	clone.Set(FieldTitle, "new")
	clone.Unlock(FieldKeywords)
	list := clone.Fields[FieldKeywords].([]any)
	list[0] = "mutated"

	_, ok := doc.Get(FieldTitle)
	require.False(t, ok)
	require.True(t, doc.IsLocked(FieldKeywords))
	require.Equal(t, []any{"a"}, doc.Fields[FieldKeywords])
}

func TestEqualComparesFieldsAndLocks(t *testing.T) {
	a := New()
	a.Set(FieldTitle, "T")
	b := a.Clone()
	require.True(t, a.Equal(b))

	b.Lock(FieldTitle)
	require.False(t, a.Equal(b))

	b.Unlock(FieldTitle)
	b.Set(FieldTitle, "other")
	require.False(t, a.Equal(b))
}

func TestSetFieldsSorted(t *testing.T) {
	doc := New()
	doc.Set(FieldTitle, "T")
	doc.Set(FieldAbstract, "A")
	doc.Set(FieldKeywords, []any{"k"})

	require.Equal(t, []string{FieldAbstract, FieldKeywords, FieldTitle}, doc.SetFields())
}

func TestHumanName(t *testing.T) {
	require.Equal(t, "Kind of data", HumanName(FieldKindOfData))
	require.Equal(t, "custom_field", HumanName("custom_field"))
}

func TestZeroValueDocumentIsUsable(t *testing.T) {
	var doc Document
	doc.Set(FieldTitle, "T")
	doc.Lock(FieldTitle)

	require.True(t, doc.IsLocked(FieldTitle))
	require.True(t, doc.Equal(doc.Clone()))
}
