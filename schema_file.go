package salesman

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SchemaFile is the YAML form of a schema:
//
//	object: Lead
//	attributes:
//	  id: Id
//	  contact:
//	    firstName: FirstName
//	  attachments: { ref: Attachment, collection: true }
type SchemaFile struct {
	Name            string         `yaml:"name"`
	Object          string         `yaml:"object"`
	AttributeConfig `yaml:",inline"`
	Attributes      map[string]any `yaml:"attributes"`
}

// ParseSchema decodes one YAML schema document.
func ParseSchema(r io.Reader) (*SchemaFile, *Schema, error) {
	var doc SchemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, NewError("invalid schema document", WithCode(ErrInvalidDefinition), WithCause(err))
	}
	if doc.Object == "" {
		return nil, nil, NewError("schema document is missing 'object'", WithCode(ErrInvalidDefinition))
	}
	if doc.Name == "" {
		doc.Name = doc.Object
	}
	s, err := NewSchema(doc.Object, doc.Attributes, doc.AttributeConfig)
	if err != nil {
		return nil, nil, err
	}
	return &doc, s, nil
}

// LoadSchemaFile reads and parses a YAML schema file.
func LoadSchemaFile(path string) (*SchemaFile, *Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, NewError(fmt.Sprintf("cannot read schema file %s", path), WithCode(ErrArgument), WithCause(err))
	}
	return ParseSchema(bytes.NewReader(b))
}
