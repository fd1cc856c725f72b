package scanner

import "pkgcheck/filtering"

// FileRecord is one discovered binary. FilePath is relative to the scan root
// and always uses forward slashes. Missing metadata is the empty string.
type FileRecord struct {
	FilePath       string            `json:"file_path"`
	FileVersion    string            `json:"file_version"`
	ProductVersion string            `json:"product_version"`
	Signature      string            `json:"signature"`
	Highlighted    bool              `json:"highlighted"`
	Hashes         map[string]string `json:"hashes,omitempty"`
	FuzzyHash      string            `json:"fuzzy_hash,omitempty"`
}

// Value implements filtering.Record.
func (r FileRecord) Value(f filtering.Field) string {
	switch f {
	case filtering.ProductVersion:
		return r.ProductVersion
	case filtering.FileVersion:
		return r.FileVersion
	case filtering.FilePath:
		return r.FilePath
	case filtering.Signature:
		return r.Signature
	}
	return ""
}
