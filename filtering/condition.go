package filtering

import (
	"fmt"
	"strings"
)

// Field names one of the four filterable columns of an inventory record.
type Field int

const (
	ProductVersion Field = iota
	FileVersion
	FilePath
	Signature
)

// Fields lists every filterable field in evaluation order.
var Fields = []Field{ProductVersion, FileVersion, FilePath, Signature}

func (f Field) String() string {
	switch f {
	case ProductVersion:
		return "product_version"
	case FileVersion:
		return "file_version"
	case FilePath:
		return "file_path"
	case Signature:
		return "signature"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// ParseField resolves a field name; dashes and underscores are interchangeable.
func ParseField(name string) (Field, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for _, f := range Fields {
		if f.String() == normalized {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown filter field: %q", name)
}

// Record exposes the filterable values of an inventory entry.
type Record interface {
	Value(Field) string
}

// Condition is the pattern set for one field. Include patterns must all
// match; any highlight pattern matching marks the record.
type Condition struct {
	Include   []string `json:"include,omitempty" yaml:"include,omitempty"`
	Highlight []string `json:"highlight,omitempty" yaml:"highlight,omitempty"`
}

func (c Condition) Validate() error {
	for _, p := range c.Include {
		if _, err := Compile(p); err != nil {
			return fmt.Errorf("include: %w", err)
		}
	}
	for _, p := range c.Highlight {
		if _, err := Compile(p); err != nil {
			return fmt.Errorf("highlight: %w", err)
		}
	}
	return nil
}

func (c Condition) passes(value string) bool {
	for _, p := range c.Include {
		if !Match(value, p) {
			return false
		}
	}
	return true
}

func (c Condition) highlights(value string) bool {
	for _, p := range c.Highlight {
		if Match(value, p) {
			return true
		}
	}
	return false
}

func (c Condition) empty() bool {
	return len(c.Include) == 0 && len(c.Highlight) == 0
}

func (c Condition) clone() Condition {
	return Condition{
		Include:   append([]string(nil), c.Include...),
		Highlight: append([]string(nil), c.Highlight...),
	}
}
