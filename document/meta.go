package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/richardlehane/mscfb"
	"github.com/richardlehane/msoleps"
	"github.com/xuri/excelize/v2"
)

// Info describes one workbook for triage output: what the file really is,
// whether it is encrypted, and what it links to.
type Info struct {
	Path       string     `json:"path"`
	Container  string     `json:"container"`
	Flavor     string     `json:"flavor"`
	Encrypted  bool       `json:"encrypted"`
	Sheets     []string   `json:"sheets,omitempty"`
	Links      []string   `json:"links"`
	Properties []Property `json:"properties,omitempty"`
}

// Property is one document property in file order.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Inspect reports what a workbook file actually contains. Like Open it goes
// by content, so it is the tool of choice when an extension lies.
func (h *FileHost) Inspect(path string, opts OpenOptions) (*Info, error) {
	if h.shutdown {
		return nil, errors.New("document host is shut down")
	}

	kind, err := sniffContainer(path)
	if err != nil {
		return nil, fmt.Errorf("reading workbook: %w", err)
	}

	info := &Info{Path: path, Container: kind.String(), Flavor: "unknown"}
	switch kind {
	case containerZIP:
		err = inspectPackage(path, opts, info)
	case containerOLE2:
		err = inspectCompound(path, opts, info)
	default:
		return nil, ErrNotWorkbook
	}
	if err != nil {
		return nil, err
	}
	// Links stays a list even when empty, matching the scan report's shape.
	if info.Links == nil {
		info.Links = []string{}
	}
	return info, nil
}

func inspectPackage(path string, opts OpenOptions, info *Info) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("opening package: %w", err)
	}
	src := zipParts{r: &zr.Reader}
	if _, ok := src.part("xl/workbook.bin"); ok {
		defer zr.Close()
		info.Flavor = "xlsb"
		links, err := externalLinkTargets(src)
		if err != nil {
			return err
		}
		info.Links = links
		info.Properties = corePropsFromPart(src)
		return nil
	}
	zr.Close()
	return inspectExcelize(path, opts, info)
}

func inspectCompound(path string, opts OpenOptions, info *Info) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening compound file: %w", err)
	}
	defer f.Close()

	doc, err := mscfb.New(f)
	if err != nil {
		return fmt.Errorf("reading compound file: %w", err)
	}

	var stream []byte
	var encryptedPackage, legacyBook bool
	props := msoleps.New()
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if msoleps.IsMSOLEPS(entry.Initial) {
			if perr := props.Reset(doc); perr != nil {
				continue
			}
			for _, p := range props.Property {
				if p.Name == "" {
					continue
				}
				info.Properties = append(info.Properties, Property{Name: p.Name, Value: fmt.Sprintf("%v", p)})
			}
			continue
		}
		switch entry.Name {
		case "Workbook":
			if entry.Size <= 0 || entry.Size > maxWorkbookStream {
				return fmt.Errorf("workbook stream has implausible size %d", entry.Size)
			}
			stream = make([]byte, entry.Size)
			if _, err := io.ReadFull(entry, stream); err != nil {
				return fmt.Errorf("reading workbook stream: %w", err)
			}
		case "Book":
			legacyBook = true
		case "EncryptedPackage":
			encryptedPackage = true
		}
	}

	switch {
	case stream != nil:
		info.Flavor = "biff8"
		links, err := scanBIFFLinks(stream, OpenOptions{})
		switch {
		case err == nil:
			info.Links = links
		case errors.Is(err, ErrPasswordRequired):
			info.Encrypted = true
		case errors.Is(err, ErrLegacyWorkbook):
			info.Flavor = "legacy-biff"
		default:
			return err
		}
	case encryptedPackage:
		info.Flavor = "ooxml"
		info.Encrypted = true
		if opts.Password != "" {
			return inspectExcelize(path, opts, info)
		}
	case legacyBook:
		info.Flavor = "legacy-biff"
	default:
		return ErrNotWorkbook
	}
	return nil
}

// inspectExcelize fills in flavor, sheet list, links and core properties
// from an excelize open; it handles plain and encrypted packages alike.
func inspectExcelize(path string, opts OpenOptions, info *Info) error {
	f, err := excelize.OpenFile(path, excelize.Options{Password: opts.Password})
	if err != nil {
		return mapOpenError(err, opts)
	}
	defer f.Close()

	src := pkgParts{f: f}
	info.Flavor = contentFlavor(src)
	info.Sheets = f.GetSheetList()
	links, err := externalLinkTargets(src)
	if err != nil {
		return err
	}
	info.Links = links
	if dp, err := f.GetDocProps(); err == nil && dp != nil {
		info.Properties = append(info.Properties, packageProps(dp)...)
	}
	return nil
}

// contentFlavor distinguishes macro-enabled packages by their content types.
func contentFlavor(parts partSource) string {
	if data, ok := parts.part("[Content_Types].xml"); ok {
		if bytes.Contains(data, []byte("macroEnabled")) {
			return "xlsm"
		}
	}
	return "xlsx"
}

func packageProps(dp *excelize.DocProperties) []Property {
	var props []Property
	props = appendProp(props, "Title", dp.Title)
	props = appendProp(props, "Subject", dp.Subject)
	props = appendProp(props, "Creator", dp.Creator)
	props = appendProp(props, "Keywords", dp.Keywords)
	props = appendProp(props, "Description", dp.Description)
	props = appendProp(props, "LastModifiedBy", dp.LastModifiedBy)
	props = appendProp(props, "Category", dp.Category)
	props = appendProp(props, "Created", dp.Created)
	props = appendProp(props, "Modified", dp.Modified)
	return props
}

// coreProperties mirrors docProps/core.xml; used on the raw-archive path
// where no parsed document is available.
type coreProperties struct {
	Title          string `xml:"title"`
	Subject        string `xml:"subject"`
	Creator        string `xml:"creator"`
	Keywords       string `xml:"keywords"`
	Description    string `xml:"description"`
	LastModifiedBy string `xml:"lastModifiedBy"`
	Created        string `xml:"created"`
	Modified       string `xml:"modified"`
	Category       string `xml:"category"`
}

func corePropsFromPart(parts partSource) []Property {
	data, ok := parts.part("docProps/core.xml")
	if !ok {
		return nil
	}
	var core coreProperties
	if err := xml.Unmarshal(data, &core); err != nil {
		return nil
	}
	var props []Property
	props = appendProp(props, "Title", core.Title)
	props = appendProp(props, "Subject", core.Subject)
	props = appendProp(props, "Creator", core.Creator)
	props = appendProp(props, "Keywords", core.Keywords)
	props = appendProp(props, "Description", core.Description)
	props = appendProp(props, "LastModifiedBy", core.LastModifiedBy)
	props = appendProp(props, "Category", core.Category)
	props = appendProp(props, "Created", core.Created)
	props = appendProp(props, "Modified", core.Modified)
	return props
}

func appendProp(props []Property, name, value string) []Property {
	if value == "" {
		return props
	}
	return append(props, Property{Name: name, Value: value})
}
