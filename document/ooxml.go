package document

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/estatescan/xlinks/internal"
)

// Relationship type suffixes from the OOXML package conventions. Matching on
// the trailing segment keeps transitional and strict namespaces equivalent.
const (
	relTypeOfficeDocument   = "/officeDocument"
	relTypeExternalLink     = "/externalLink"
	relTypeExternalLinkPath = "/externalLinkPath"
)

type relationships struct {
	Rels []relationship `xml:"Relationship"`
}

type relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr"`
}

func decodeRels(data []byte) (*relationships, error) {
	var rels relationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, err
	}
	return &rels, nil
}

// partSource yields raw package parts by name. One implementation reads an
// open excelize file, the other a plain ZIP archive; link extraction is the
// same over both.
type partSource interface {
	part(name string) ([]byte, bool)
}

// pkgParts serves parts from an excelize file, which keeps the full package
// contents loaded, including parts excelize itself does not model.
type pkgParts struct {
	f *excelize.File
}

func (p pkgParts) part(name string) ([]byte, bool) {
	v, ok := p.f.Pkg.Load(name)
	if !ok {
		return nil, false
	}
	data, ok := v.([]byte)
	return data, ok
}

// zipParts serves parts from a raw archive. Used for .xlsb packages, whose
// workbook part is binary: the relationship parts are still plain XML.
type zipParts struct {
	r *zip.Reader
}

func (z zipParts) part(name string) ([]byte, bool) {
	for _, f := range z.r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, false
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, false
		}
		return data, true
	}
	return nil, false
}

// resolvePart resolves a relationship target against the directory of its
// source part. Package-absolute targets start with "/".
func resolvePart(baseDir, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(baseDir, target))
}

// relsPathFor returns the name of the relationships part attached to a part:
// xl/workbook.xml relates through xl/_rels/workbook.xml.rels.
func relsPathFor(partName string) string {
	dir, base := path.Split(partName)
	return dir + "_rels/" + base + ".rels"
}

// workbookPart locates the main workbook part via the package-level
// relationships, falling back to the conventional names.
func workbookPart(parts partSource) string {
	if data, ok := parts.part("_rels/.rels"); ok {
		if rels, err := decodeRels(data); err == nil {
			for _, rel := range rels.Rels {
				if strings.HasSuffix(rel.Type, relTypeOfficeDocument) {
					return resolvePart("", rel.Target)
				}
			}
		}
	}
	for _, name := range []string{"xl/workbook.xml", "xl/workbook.bin"} {
		if _, ok := parts.part(name); ok {
			return name
		}
	}
	return "xl/workbook.xml"
}

// externalLinkTargets walks the workbook's relationship parts and returns
// the external link targets, in the order the relationships record them.
// Each externalLink part points at its linked file through an
// externalLinkPath relationship; DDE and OLE channels have no such
// relationship and drop out naturally.
func externalLinkTargets(parts partSource) ([]string, error) {
	wbPart := workbookPart(parts)
	wbDir := path.Dir(wbPart)

	relsData, ok := parts.part(relsPathFor(wbPart))
	if !ok {
		return nil, nil // no relationships part: nothing links out
	}
	rels, err := decodeRels(relsData)
	if err != nil {
		return nil, fmt.Errorf("workbook relationships: %w", err)
	}

	var targets []string
	for _, rel := range rels.Rels {
		if !strings.HasSuffix(rel.Type, relTypeExternalLink) {
			continue
		}
		linkPart := resolvePart(wbDir, rel.Target)
		linkRelsData, ok := parts.part(relsPathFor(linkPart))
		if !ok {
			continue
		}
		linkRels, err := decodeRels(linkRelsData)
		if err != nil {
			return nil, fmt.Errorf("external link relationships: %w", err)
		}
		for _, lr := range linkRels.Rels {
			if strings.HasSuffix(lr.Type, relTypeExternalLinkPath) {
				targets = append(targets, internal.CleanTarget(lr.Target))
			}
		}
	}
	return targets, nil
}

// openPackage opens a ZIP-container workbook. Packages with a binary
// workbook part (.xlsb) are read as raw archives; everything else goes
// through excelize, which also validates the package structure.
func openPackage(path string, opts OpenOptions) (Workbook, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening package: %w", err)
	}
	src := zipParts{r: &zr.Reader}
	if _, ok := src.part("xl/workbook.bin"); ok {
		return &packageWorkbook{parts: src, closer: zr.Close}, nil
	}
	zr.Close()
	return openExcelize(path, opts)
}

// openExcelize opens a workbook through excelize, mapping its errors onto
// the package sentinels. Encrypted packages arrive here from the compound
// path with the operator's password.
func openExcelize(path string, opts OpenOptions) (Workbook, error) {
	f, err := excelize.OpenFile(path, excelize.Options{Password: opts.Password})
	if err != nil {
		return nil, mapOpenError(err, opts)
	}
	return &packageWorkbook{parts: pkgParts{f: f}, closer: f.Close}, nil
}

func mapOpenError(err error, opts OpenOptions) error {
	switch {
	case errors.Is(err, excelize.ErrWorkbookPassword):
		if opts.Password == "" {
			return ErrPasswordRequired
		}
		return errors.New("wrong workbook password")
	case errors.Is(err, excelize.ErrWorkbookFileFormat):
		return ErrNotWorkbook
	default:
		return fmt.Errorf("opening workbook: %w", err)
	}
}

// packageWorkbook is an open OOXML workbook.
type packageWorkbook struct {
	parts  partSource
	closer func() error
}

func (w *packageWorkbook) LinkTargets() ([]string, error) {
	return externalLinkTargets(w.parts)
}

func (w *packageWorkbook) Close() error {
	if w.closer == nil {
		return nil
	}
	err := w.closer()
	w.closer = nil
	return err
}
