/*
Package salesman – resolving a schema against a remote description.

Column fields are checked against the described fields: unknown and
deprecated columns are kept with an error marker and left out of writes,
default selects and pattern expansion. Relationship fields must name a
registered model whose object is a live relationship of this one; anything
else fails the whole resolution with UnknownRelationship.
*/
package salesman

import (
	"fmt"
	"slices"
	"strings"
)

// IDColumn is the remote identifier column.
const IDColumn = "Id"

// relationshipOption overrides the remote relationship name of a ref field.
const relationshipOption = "relationship"

// ResolvedField is a column field checked against the description.
type ResolvedField struct {
	Path   string
	Column string
	// Meta is nil for dotted columns read through a parent relationship.
	Meta *FieldMeta
	// Err marks a field the remote object cannot serve.
	Err error
}

// Readable reports whether the field may be selected.
func (f *ResolvedField) Readable() bool { return f.Err == nil }

// Creatable reports whether the field may be written on create.
func (f *ResolvedField) Creatable() bool {
	return f.Err == nil && f.Meta != nil && f.Meta.Creatable && !f.Meta.Deprecated
}

// Updatable reports whether the field may be written on update.
func (f *ResolvedField) Updatable() bool {
	return f.Err == nil && f.Meta != nil && f.Meta.Updatable && !f.Meta.Deprecated
}

// ResolvedRelationship is a ref field bound to a registered model.
type ResolvedRelationship struct {
	Path             string
	Ref              string
	Collection       bool
	RelationshipName string
	Model            *Model
}

// ResolvedDefinition is a schema bound to the description of its object.
type ResolvedDefinition struct {
	ObjectName    string
	Columns       map[string]*ResolvedField
	Relationships map[string]*ResolvedRelationship
	// IDField is the field path mapped to the Id column, if any.
	IDField string

	fields Attributes
}

// Fields implements Definition: readable columns and relationships.
func (d *ResolvedDefinition) Fields() Attributes { return d.fields }

// Errors returns the error marker of every unusable field.
func (d *ResolvedDefinition) Errors() map[string]error {
	out := map[string]error{}
	for path, f := range d.Columns {
		if f.Err != nil {
			out[path] = f.Err
		}
	}
	return out
}

// resolveDefinition binds attrs to desc. lookup finds registered models by name.
func resolveDefinition(objectName string, attrs Attributes, desc *Description,
	lookup func(string) (*Model, error)) (*ResolvedDefinition, error) {

	def := &ResolvedDefinition{
		ObjectName:    objectName,
		Columns:       map[string]*ResolvedField{},
		Relationships: map[string]*ResolvedRelationship{},
		fields:        Attributes{},
	}

	for _, path := range sortedKeys(attrs) {
		field := attrs[path]
		if field.IsRelationship() {
			rel, err := resolveRelationship(objectName, path, field, desc, lookup)
			if err != nil {
				return nil, err
			}
			def.Relationships[path] = rel
			def.fields[path] = field.clone()
			continue
		}

		rf := resolveColumn(objectName, path, field.Column, desc)
		def.Columns[path] = rf
		if rf.Err != nil {
			continue
		}
		def.fields[path] = field.clone()
		if rf.Column == IDColumn && def.IDField == "" {
			def.IDField = path
		}
	}
	return def, nil
}

func resolveColumn(objectName, path, column string, desc *Description) *ResolvedField {
	rf := &ResolvedField{Path: path, Column: column}
	if head, _, dotted := strings.Cut(column, "."); dotted {
		parent, ok := desc.Fields.ByRelationship[head]
		switch {
		case !ok:
			rf.Err = fmt.Errorf("%s.%s: unknown relationship %s in column %s", objectName, path, head, column)
		case parent.Deprecated:
			rf.Err = fmt.Errorf("%s.%s: relationship %s is deprecated", objectName, path, head)
		}
		return rf
	}
	meta, ok := desc.Fields.ByName[column]
	switch {
	case !ok:
		rf.Err = fmt.Errorf("%s.%s: unknown column %s", objectName, path, column)
	case meta.Deprecated:
		rf.Meta = meta
		rf.Err = fmt.Errorf("%s.%s: column %s is deprecated", objectName, path, column)
	default:
		rf.Meta = meta
	}
	return rf
}

func resolveRelationship(objectName, path string, field *FieldDef, desc *Description,
	lookup func(string) (*Model, error)) (*ResolvedRelationship, error) {

	unknown := func(format string, args ...any) error {
		return NewError(fmt.Sprintf("%s.%s: ", objectName, path)+fmt.Sprintf(format, args...),
			WithCode(ErrUnknownRelationship),
			WithContext(map[string]any{"object": objectName, "path": path, "ref": field.Ref}))
	}

	target, err := lookup(field.Ref)
	if err != nil {
		return nil, unknown("'%s' is not a registered model", field.Ref)
	}
	targetObject := target.ObjectName()
	override, _ := field.Options[relationshipOption].(string)

	rel := &ResolvedRelationship{Path: path, Ref: field.Ref, Collection: field.Collection, Model: target}

	if field.Collection {
		child, ok := desc.ChildRelationships[targetObject]
		if !ok || child.RelationshipName == "" {
			return nil, unknown("%s has no child relationship to %s", objectName, targetObject)
		}
		if child.Deprecated {
			return nil, unknown("child relationship %s is deprecated", child.RelationshipName)
		}
		if override != "" && override != child.RelationshipName {
			return nil, unknown("child relationship %s does not exist, found %s", override, child.RelationshipName)
		}
		rel.RelationshipName = child.RelationshipName
		return rel, nil
	}

	var meta *FieldMeta
	if override != "" {
		meta = desc.Fields.ByRelationship[override]
	} else {
		for _, name := range sortedKeys(desc.Fields.ByRelationship) {
			candidate := desc.Fields.ByRelationship[name]
			if slices.Contains(candidate.ReferenceTo, targetObject) {
				meta = candidate
				break
			}
		}
	}
	if meta == nil {
		return nil, unknown("%s has no relationship to %s", objectName, targetObject)
	}
	if meta.Deprecated {
		return nil, unknown("relationship %s is deprecated", meta.RelationshipName)
	}
	rel.RelationshipName = meta.RelationshipName
	return rel, nil
}
