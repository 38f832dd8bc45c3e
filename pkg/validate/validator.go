// Package validate rejects config documents that do not parse. It does not look at what the document says.
package validate

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"

	"github.com/terrycain/blob-config-sync/pkg/e"
)

type Document struct {
	Format string
	Root   interface{}
}

func (d Document) Kind() string {
	switch d.Root.(type) {
	case map[string]interface{}, map[interface{}]interface{}:
		return "mapping"
	case []interface{}:
		return "sequence"
	default:
		return "scalar"
	}
}

type Validator interface {
	Format() string
	Validate(data []byte) (Document, error)
}

func New(format string) (Validator, error) {
	switch format {
	case "yaml", "":
		return YAML{}, nil
	case "json":
		return JSON{}, nil
	default:
		return nil, fmt.Errorf("invalid document format %q", format)
	}
}

func checkEmpty(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: document is empty", e.ErrMalformed)
	}
	return nil
}

type YAML struct{}

func (YAML) Format() string { return "yaml" }

func (YAML) Validate(data []byte) (Document, error) {
	if err := checkEmpty(data); err != nil {
		return Document{}, err
	}

	var root interface{}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Document{}, fmt.Errorf("%w: %s", e.ErrMalformed, err.Error())
	}
	return Document{Format: "yaml", Root: root}, nil
}

type JSON struct{}

func (JSON) Format() string { return "json" }

func (JSON) Validate(data []byte) (Document, error) {
	if err := checkEmpty(data); err != nil {
		return Document{}, err
	}

	var root interface{}
	if err := json.Unmarshal(data, &root); err != nil {
		return Document{}, fmt.Errorf("%w: %s", e.ErrMalformed, err.Error())
	}
	return Document{Format: "json", Root: root}, nil
}
