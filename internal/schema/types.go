// Package schema holds the data model for virtualized views: catalog
// metadata documents, the retrieval result shape consumed by prompts, and
// the renderers that turn both into compact text.
package schema

import (
	"encoding/json"
	"strings"
)

// ID is a view identifier. The catalog emits numeric ids while the vector
// store round-trips them as strings; ID tolerates both on decode.
type ID string

// UnmarshalJSON accepts both `123` and `"123"`.
func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	*id = ID(s)
	return nil
}

// MarshalJSON always emits the string form.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// Doc is the normalized schema document for one view, as stored in the
// vector index metadata and rendered into prompts.
type Doc struct {
	ID           ID            `json:"id"`
	TableName    string        `json:"tableName"`
	Description  string        `json:"description,omitempty"`
	Schema       []Column      `json:"schema"`
	Associations []Association `json:"associations,omitempty"`
	TagDetails   []Tag         `json:"tagDetails,omitempty"`
}

// Column describes one view column.
type Column struct {
	ColumnName  string   `json:"columnName"`
	Type        string   `json:"type"`
	LogicalName string   `json:"logicalName,omitempty"`
	Description string   `json:"description,omitempty"`
	PrimaryKey  bool     `json:"primaryKey,omitempty"`
	Nullable    bool     `json:"nullable"`
	SampleData  []string `json:"sample_data,omitempty"`
}

// Association is a declared join relationship to another view.
type Association struct {
	TableName string `json:"table_name"`
	TableID   ID     `json:"table_id"`
	Where     string `json:"where"`
}

// Tag is a catalog grouping label.
type Tag struct {
	Name string `json:"name"`
}

// DatabaseName returns the database part of the qualified table name.
func (d *Doc) DatabaseName() string {
	name, _, _ := strings.Cut(d.TableName, ".")
	return name
}

// TagNames returns the tag labels of this view.
func (d *Doc) TagNames() []string {
	names := make([]string, 0, len(d.TagDetails))
	for _, tag := range d.TagDetails {
		names = append(names, tag.Name)
	}
	return names
}

// AssociationTargets returns the qualified names of every associated view.
func (d *Doc) AssociationTargets() []string {
	targets := make([]string, 0, len(d.Associations))
	for _, assoc := range d.Associations {
		targets = append(targets, assoc.TableName)
	}
	return targets
}

// RelevantTable is one retrieval hit: the rendered summary that matched plus
// the parsed schema document behind it.
type RelevantTable struct {
	ViewID   ID     `json:"view_id"`
	ViewName string `json:"view_name"`
	ViewText string `json:"view_text"`
	ViewJSON Doc    `json:"view_json"`
}

// SampleData maps view id -> column name -> example values, computed per
// request and never persisted.
type SampleData map[ID]map[string][]string

// FilterAssociations returns a copy of doc whose associations only reference
// permitted view ids. A nil permitted set means no filtering.
func FilterAssociations(doc Doc, permitted map[ID]bool) Doc {
	if permitted == nil {
		return doc
	}

	filtered := make([]Association, 0, len(doc.Associations))
	for _, assoc := range doc.Associations {
		if permitted[assoc.TableID] {
			filtered = append(filtered, assoc)
		}
	}
	doc.Associations = filtered
	return doc
}
