/*
Package salesman – object description normalization.

The remote describe payload misspells several capability flags
("createable", "updateable"); the JSON tags below keep the wire names and the
normalized Description uses the correct spelling.
*/
package salesman

// RecordTypeField is the field whose picklist is built from recordTypeInfos.
const RecordTypeField = "RecordTypeId"

// RawDescribe is the remote describe payload.
type RawDescribe struct {
	Name                string                 `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Createable          bool                   `json:"createable" dynamodbav:"createable"`
	Deletable           bool                   `json:"deletable" dynamodbav:"deletable"`
	Updateable          bool                   `json:"updateable" dynamodbav:"updateable"`
	DeprecatedAndHidden bool                   `json:"deprecatedAndHidden" dynamodbav:"deprecatedAndHidden"`
	KeyPrefix           string                 `json:"keyPrefix" dynamodbav:"keyPrefix"`
	Label               string                 `json:"label" dynamodbav:"label"`
	LabelPlural         string                 `json:"labelPlural" dynamodbav:"labelPlural"`
	ChildRelationships  []RawChildRelationship `json:"childRelationships" dynamodbav:"childRelationships"`
	Fields              []RawField             `json:"fields" dynamodbav:"fields"`
	RecordTypeInfos     []RawRecordTypeInfo    `json:"recordTypeInfos" dynamodbav:"recordTypeInfos"`
}

// RawChildRelationship is one entry of RawDescribe.ChildRelationships.
type RawChildRelationship struct {
	ChildSObject        string `json:"childSObject" dynamodbav:"childSObject"`
	DeprecatedAndHidden bool   `json:"deprecatedAndHidden" dynamodbav:"deprecatedAndHidden"`
	Field               string `json:"field" dynamodbav:"field"`
	RelationshipName    string `json:"relationshipName" dynamodbav:"relationshipName"`
}

// RawField is one entry of RawDescribe.Fields.
type RawField struct {
	Createable          bool               `json:"createable" dynamodbav:"createable"`
	Updateable          bool               `json:"updateable" dynamodbav:"updateable"`
	Nillable            bool               `json:"nillable" dynamodbav:"nillable"`
	DefaultValue        any                `json:"defaultValue" dynamodbav:"defaultValue"`
	DeprecatedAndHidden bool               `json:"deprecatedAndHidden" dynamodbav:"deprecatedAndHidden"`
	Label               string             `json:"label" dynamodbav:"label"`
	Name                string             `json:"name" dynamodbav:"name"`
	RelationshipName    string             `json:"relationshipName" dynamodbav:"relationshipName"`
	ReferenceTo         []string           `json:"referenceTo" dynamodbav:"referenceTo"`
	RestrictedPicklist  bool               `json:"restrictedPicklist" dynamodbav:"restrictedPicklist"`
	Type                string             `json:"type" dynamodbav:"type"`
	PicklistValues      []RawPicklistValue `json:"picklistValues" dynamodbav:"picklistValues"`
}

// RawPicklistValue is one picklist entry of a RawField.
type RawPicklistValue struct {
	Active       bool   `json:"active" dynamodbav:"active"`
	DefaultValue bool   `json:"defaultValue" dynamodbav:"defaultValue"`
	Label        string `json:"label" dynamodbav:"label"`
	Value        string `json:"value" dynamodbav:"value"`
}

// RawRecordTypeInfo is one entry of RawDescribe.RecordTypeInfos.
type RawRecordTypeInfo struct {
	Available                bool   `json:"available" dynamodbav:"available"`
	DefaultRecordTypeMapping bool   `json:"defaultRecordTypeMapping" dynamodbav:"defaultRecordTypeMapping"`
	Name                     string `json:"name" dynamodbav:"name"`
	RecordTypeID             string `json:"recordTypeId" dynamodbav:"recordTypeId"`
}

// Description is the normalized description of a remote object.
type Description struct {
	Creatable          bool                          `json:"creatable"`
	Deletable          bool                          `json:"deletable"`
	Updatable          bool                          `json:"updatable"`
	Deprecated         bool                          `json:"deprecated"`
	KeyPrefix          string                        `json:"keyPrefix"`
	Label              string                        `json:"label"`
	LabelPlural        string                        `json:"labelPlural"`
	ChildRelationships map[string]*ChildRelationship `json:"childRelationships"`
	Fields             FieldIndex                    `json:"fields"`
}

// ChildRelationship describes a relationship from a child object to this one.
type ChildRelationship struct {
	Deprecated       bool   `json:"deprecated"`
	Field            string `json:"field"`
	RelationshipName string `json:"relationshipName"`
}

// FieldIndex holds the same FieldMeta pointers under two keys.
type FieldIndex struct {
	ByName         map[string]*FieldMeta `json:"byName"`
	ByRelationship map[string]*FieldMeta `json:"byRelationship"`
}

// FieldMeta is the normalized metadata of one remote field.
type FieldMeta struct {
	Creatable          bool            `json:"creatable"`
	Updatable          bool            `json:"updatable"`
	Required           bool            `json:"required"`
	Deprecated         bool            `json:"deprecated"`
	DefaultValue       any             `json:"defaultValue"`
	Label              string          `json:"label"`
	Name               string          `json:"name"`
	RelationshipName   string          `json:"relationshipName,omitempty"`
	ReferenceTo        []string        `json:"referenceTo"`
	RestrictedPicklist bool            `json:"restrictedPicklist"`
	Type               string          `json:"type"`
	PicklistValues     []PicklistValue `json:"picklistValues"`
}

// PicklistValue is an allowed value of a picklist field.
type PicklistValue struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// NormalizeDescribe derives a Description from a raw payload. raw is not modified.
func NormalizeDescribe(raw *RawDescribe) *Description {
	if raw == nil {
		raw = &RawDescribe{}
	}
	return &Description{
		Creatable:          raw.Createable,
		Deletable:          raw.Deletable,
		Updatable:          raw.Updateable,
		Deprecated:         raw.DeprecatedAndHidden,
		KeyPrefix:          raw.KeyPrefix,
		Label:              raw.Label,
		LabelPlural:        raw.LabelPlural,
		ChildRelationships: normalizeChildRelationships(raw.ChildRelationships),
		Fields:             normalizeFields(raw),
	}
}

func normalizeChildRelationships(raw []RawChildRelationship) map[string]*ChildRelationship {
	out := make(map[string]*ChildRelationship, len(raw))
	for _, child := range raw {
		out[child.ChildSObject] = &ChildRelationship{
			Deprecated:       child.DeprecatedAndHidden,
			Field:            child.Field,
			RelationshipName: child.RelationshipName,
		}
	}
	return out
}

func normalizeFields(raw *RawDescribe) FieldIndex {
	idx := FieldIndex{
		ByName:         make(map[string]*FieldMeta, len(raw.Fields)),
		ByRelationship: map[string]*FieldMeta{},
	}
	for _, info := range raw.Fields {
		field := &FieldMeta{
			Creatable:          info.Createable,
			Updatable:          info.Updateable,
			Required:           !info.Nillable,
			Deprecated:         info.DeprecatedAndHidden,
			DefaultValue:       info.DefaultValue,
			Label:              info.Label,
			Name:               info.Name,
			RelationshipName:   info.RelationshipName,
			ReferenceTo:        append([]string{}, info.ReferenceTo...),
			RestrictedPicklist: info.RestrictedPicklist,
			Type:               info.Type,
			PicklistValues:     []PicklistValue{},
		}
		for _, pv := range info.PicklistValues {
			if !pv.Active {
				continue
			}
			if pv.DefaultValue {
				field.DefaultValue = pv.Value
			}
			field.PicklistValues = append(field.PicklistValues, PicklistValue{Label: pv.Label, Value: pv.Value})
		}
		idx.ByName[field.Name] = field
		if field.RelationshipName != "" {
			idx.ByRelationship[field.RelationshipName] = field
		}
	}

	if rt, ok := idx.ByName[RecordTypeField]; ok {
		rt.RestrictedPicklist = true
		rt.PicklistValues = []PicklistValue{}
		for _, info := range raw.RecordTypeInfos {
			if !info.Available {
				continue
			}
			if info.DefaultRecordTypeMapping {
				rt.DefaultValue = info.RecordTypeID
			}
			rt.PicklistValues = append(rt.PicklistValues, PicklistValue{Label: info.Name, Value: info.RecordTypeID})
		}
	}
	return idx
}
