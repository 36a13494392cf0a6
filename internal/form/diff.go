package form

import (
	"sort"

	"lahtotiedot/api/internal/store"
)

// FieldChange reports one field whose value differs between a
// submission and its parent. A nil OldValue means the field did not
// exist in the parent; a nil NewValue means it was dropped.
type FieldChange struct {
	Field    string  `json:"field"`
	OldValue *string `json:"oldValue"`
	NewValue *string `json:"newValue"`
}

// FileChange identifies a file row by the same triple the store uses
// for idempotent inserts.
type FileChange struct {
	FieldName string `json:"fieldName"`
	FileName  string `json:"fileName"`
	FileURL   string `json:"fileUrl"`
}

type ChangeReport struct {
	IsFirstSubmission bool          `json:"isFirstSubmission"`
	FieldsChanged     []FieldChange `json:"fieldsChanged"`
	FilesAdded        []FileChange  `json:"filesAdded"`
	FilesRemoved      []FileChange  `json:"filesRemoved"`
}

func emptyReport(first bool) ChangeReport {
	return ChangeReport{
		IsFirstSubmission: first,
		FieldsChanged:     []FieldChange{},
		FilesAdded:        []FileChange{},
		FilesRemoved:      []FileChange{},
	}
}

// diffFields compares the union of field names in both maps under the
// canonical form and reports mismatches in sorted-name order. Reported
// old/new values are the raw stored values, not the canonical forms.
func diffFields(parent, current map[string]string) []FieldChange {
	names := make(map[string]struct{}, len(parent)+len(current))
	for name := range parent {
		names[name] = struct{}{}
	}
	for name := range current {
		names[name] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	changes := make([]FieldChange, 0)
	for _, name := range sorted {
		oldValue, inParent := parent[name]
		newValue, inCurrent := current[name]
		if inParent && inCurrent && canonicalValue(oldValue) == canonicalValue(newValue) {
			continue
		}
		change := FieldChange{Field: name}
		if inParent {
			v := oldValue
			change.OldValue = &v
		}
		if inCurrent {
			v := newValue
			change.NewValue = &v
		}
		changes = append(changes, change)
	}
	return changes
}

// diffFiles keys each entry by (field, name, url). Entries present on
// only one side are reported in that side's listing order; shared
// entries are omitted.
func diffFiles(parent, current []store.FileEntry) (added, removed []FileChange) {
	parentKeys := make(map[FileChange]struct{}, len(parent))
	for _, file := range parent {
		parentKeys[fileKey(file)] = struct{}{}
	}
	currentKeys := make(map[FileChange]struct{}, len(current))
	for _, file := range current {
		currentKeys[fileKey(file)] = struct{}{}
	}

	added = make([]FileChange, 0)
	for _, file := range current {
		if _, ok := parentKeys[fileKey(file)]; !ok {
			added = append(added, fileKey(file))
		}
	}
	removed = make([]FileChange, 0)
	for _, file := range parent {
		if _, ok := currentKeys[fileKey(file)]; !ok {
			removed = append(removed, fileKey(file))
		}
	}
	return added, removed
}

func fileKey(file store.FileEntry) FileChange {
	return FileChange{FieldName: file.FieldName, FileName: file.FileName, FileURL: file.FileURL}
}
