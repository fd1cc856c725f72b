package metadata

import (
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"pkgcheck/hasher"

	"github.com/h2non/filetype"
	"github.com/saferwall/pe"
)

var errNotPE = errors.New("not a PE image")

type module interface {
	Name() string
	Enabled(opts Options) bool
	Collect(fc *fileContext, md *Metadata) error
}

func buildModules(opts Options) []module {
	all := []module{
		versionModule{},
		signatureModule{},
		hashModule{},
		fuzzyModule{},
	}
	enabled := make([]module, 0, len(all))
	for _, m := range all {
		if m.Enabled(opts) {
			enabled = append(enabled, m)
		}
	}
	return enabled
}

// fileContext shares one parsed PE image between modules.
type fileContext struct {
	path string
	size int64
	opts Options

	peLoaded bool
	peFile   *pe.File
	peErr    error
}

func newFileContext(path string, opts Options) *fileContext {
	return &fileContext{path: path, opts: opts}
}

func (fc *fileContext) image() (*pe.File, error) {
	if fc.peLoaded {
		return fc.peFile, fc.peErr
	}
	fc.peLoaded = true
	fc.peFile, fc.peErr = fc.openImage()
	return fc.peFile, fc.peErr
}

func (fc *fileContext) openImage() (*pe.File, error) {
	if fc.opts.MaxBytes > 0 && fc.size > fc.opts.MaxBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", fc.opts.MaxBytes)
	}
	isPE, err := sniffPE(fc.path)
	if err != nil {
		return nil, err
	}
	if !isPE {
		return nil, errNotPE
	}
	// Trust chains are not evaluated; only the subject is read.
	f, err := pe.New(fc.path, &pe.Options{DisableCertValidation: true})
	if err != nil {
		return nil, err
	}
	if err := f.Parse(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (fc *fileContext) close() {
	if fc.peFile != nil {
		fc.peFile.Close()
		fc.peFile = nil
	}
}

func sniffPE(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	buf := make([]byte, 261)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return false, err
	}
	kind, err := filetype.Match(buf[:n])
	if err != nil {
		return false, err
	}
	return kind.Extension == "exe", nil
}

type versionModule struct{}

func (m versionModule) Name() string { return "version" }

func (m versionModule) Enabled(Options) bool { return true }

func (m versionModule) Collect(fc *fileContext, md *Metadata) error {
	f, err := fc.image()
	if err != nil {
		return err
	}
	resources, err := f.ParseVersionResources()
	if err != nil {
		return err
	}
	md.FileVersion = resources["FileVersion"]
	md.ProductVersion = resources["ProductVersion"]
	return nil
}

type signatureModule struct{}

func (m signatureModule) Name() string { return "signature" }

func (m signatureModule) Enabled(Options) bool { return true }

func (m signatureModule) Collect(fc *fileContext, md *Metadata) error {
	f, err := fc.image()
	if err != nil {
		return err
	}
	if !f.HasCertificate {
		return nil
	}
	for i := range f.Certificates.Certificates {
		cert := &f.Certificates.Certificates[i]
		if signer := cert.Content.GetOnlySigner(); signer != nil {
			md.Signature = distinguishedName(signer.Subject)
			return nil
		}
		if cert.Info.Subject != "" {
			md.Signature = cert.Info.Subject
			return nil
		}
	}
	return nil
}

var attributeKeys = map[string]string{
	"2.5.4.3":                    "CN",
	"2.5.4.4":                    "SN",
	"2.5.4.5":                    "SERIALNUMBER",
	"2.5.4.6":                    "C",
	"2.5.4.7":                    "L",
	"2.5.4.8":                    "S",
	"2.5.4.9":                    "STREET",
	"2.5.4.10":                   "O",
	"2.5.4.11":                   "OU",
	"2.5.4.12":                   "T",
	"2.5.4.42":                   "G",
	"2.5.4.43":                   "I",
	"1.2.840.113549.1.9.1":       "E",
	"0.9.2342.19200300.100.1.25": "DC",
}

// distinguishedName renders name most specific attribute first, e.g.
// "CN=Contoso, O=Contoso Ltd, L=Redmond, S=Washington, C=US". Unknown
// attribute types are written as OID.<dotted>.
func distinguishedName(name pkix.Name) string {
	parts := make([]string, 0, len(name.Names))
	for i := len(name.Names) - 1; i >= 0; i-- {
		atv := name.Names[i]
		key, ok := attributeKeys[atv.Type.String()]
		if !ok {
			key = "OID." + atv.Type.String()
		}
		parts = append(parts, key+"="+quoteAttribute(fmt.Sprint(atv.Value)))
	}
	return strings.Join(parts, ", ")
}

func quoteAttribute(v string) string {
	if v == "" {
		return v
	}
	if !strings.ContainsAny(v, ",+=\"<>#;\n") && strings.TrimSpace(v) == v {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

type hashModule struct{}

func (m hashModule) Name() string { return "hashes" }

func (m hashModule) Enabled(opts Options) bool { return len(opts.HashAlgorithms) > 0 }

func (m hashModule) Collect(fc *fileContext, md *Metadata) error {
	md.Hashes = hasher.ComputeHashes(fc.path, fc.opts.HashAlgorithms)
	return nil
}

type fuzzyModule struct{}

func (m fuzzyModule) Name() string { return "fuzzy" }

func (m fuzzyModule) Enabled(opts Options) bool { return opts.FuzzyHash }

func (m fuzzyModule) Collect(fc *fileContext, md *Metadata) error {
	digest, err := hasher.ComputeFuzzy(fc.path)
	if err != nil {
		return err
	}
	md.FuzzyHash = digest
	return nil
}
