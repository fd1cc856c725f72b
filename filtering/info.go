package filtering

import "fmt"

// Info holds one Condition per field. An Info handed to the engine is
// treated as read-only.
type Info struct {
	ProductVersion Condition `json:"product_version" yaml:"product_version"`
	FileVersion    Condition `json:"file_version" yaml:"file_version"`
	FilePath       Condition `json:"file_path" yaml:"file_path"`
	Signature      Condition `json:"signature" yaml:"signature"`
}

// Condition returns the condition for f, or nil for an unknown field.
func (i *Info) Condition(f Field) *Condition {
	switch f {
	case ProductVersion:
		return &i.ProductVersion
	case FileVersion:
		return &i.FileVersion
	case FilePath:
		return &i.FilePath
	case Signature:
		return &i.Signature
	}
	return nil
}

func (i *Info) Validate() error {
	if i == nil {
		return nil
	}
	for _, f := range Fields {
		if err := i.Condition(f).Validate(); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
	}
	return nil
}

// Passes reports whether every include pattern of every field matches the
// record. A nil Info passes everything.
func (i *Info) Passes(r Record) bool {
	if i == nil {
		return true
	}
	for _, f := range Fields {
		if !i.Condition(f).passes(r.Value(f)) {
			return false
		}
	}
	return true
}

// ShouldHighlight reports whether any highlight pattern of any field matches
// the record. It does not depend on Passes.
func (i *Info) ShouldHighlight(r Record) bool {
	if i == nil {
		return false
	}
	for _, f := range Fields {
		if i.Condition(f).highlights(r.Value(f)) {
			return true
		}
	}
	return false
}

// Empty reports whether no patterns are configured for any field.
func (i *Info) Empty() bool {
	if i == nil {
		return true
	}
	for _, f := range Fields {
		if !i.Condition(f).empty() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (i *Info) Clone() *Info {
	if i == nil {
		return &Info{}
	}
	return &Info{
		ProductVersion: i.ProductVersion.clone(),
		FileVersion:    i.FileVersion.clone(),
		FilePath:       i.FilePath.clone(),
		Signature:      i.Signature.clone(),
	}
}
