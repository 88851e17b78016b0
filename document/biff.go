package document

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
)

// BIFF record ids consumed by the link scan.
const (
	recBOF      = 0x0809
	recEOF      = 0x000A
	recFilePass = 0x002F
	recSupBook  = 0x01AE
)

// biffVersionBIFF8 is the BOF version word written by Excel 97 and later.
const biffVersionBIFF8 = 0x0600

// SupBook sentinel values in the cch field that mark non-file references.
const (
	supBookSelf  = 0x0401 // references into the workbook itself
	supBookAddIn = 0x3A01 // add-in function references
)

// Control characters of the encoded file-name form used by SupBook records.
const (
	chVolume     = 0x01
	chSameVolume = 0x02
	chDownDir    = 0x03
	chUpDir      = 0x04
	chLongVolume = 0x05
	chStartupDir = 0x06
	chAltStartup = 0x07
	chLibDir     = 0x08
)

// maxWorkbookStream caps how much of a compound file is loaded for one
// workbook stream; anything larger than this is a corrupt directory entry.
const maxWorkbookStream = 1 << 30

var errTruncatedRecord = errors.New("truncated record")

// openCompound opens an OLE2 compound file: either a legacy BIFF workbook or
// the container of an encrypted OOXML package.
func openCompound(path string, opts OpenOptions) (Workbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening compound file: %w", err)
	}
	defer f.Close()

	doc, err := mscfb.New(f)
	if err != nil {
		return nil, fmt.Errorf("reading compound file: %w", err)
	}

	var stream []byte
	var encryptedPackage, legacyBook bool
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		switch entry.Name {
		case "Workbook":
			if entry.Size <= 0 || entry.Size > maxWorkbookStream {
				return nil, fmt.Errorf("workbook stream has implausible size %d", entry.Size)
			}
			stream = make([]byte, entry.Size)
			if _, err := io.ReadFull(entry, stream); err != nil {
				return nil, fmt.Errorf("reading workbook stream: %w", err)
			}
		case "Book":
			legacyBook = true
		case "EncryptedPackage":
			encryptedPackage = true
		}
	}

	switch {
	case stream != nil:
		targets, err := scanBIFFLinks(stream, opts)
		if err != nil {
			return nil, err
		}
		return &biffWorkbook{targets: targets}, nil
	case encryptedPackage:
		// An encrypted .xlsx/.xlsm: the OLE2 container wraps the package.
		// excelize reports a password failure only when a password was
		// supplied, so the missing-password case is refused here.
		if opts.Password == "" {
			return nil, ErrPasswordRequired
		}
		return openExcelize(path, opts)
	case legacyBook:
		return nil, ErrLegacyWorkbook
	default:
		return nil, ErrNotWorkbook
	}
}

// scanBIFFLinks walks the BIFF8 record stream and collects external workbook
// paths from SupBook records. All SupBooks live in the workbook globals
// substream, so the walk stops at its closing EOF record.
func scanBIFFLinks(stream []byte, opts OpenOptions) ([]string, error) {
	if len(stream) < 4 || binary.LittleEndian.Uint16(stream[0:2]) != recBOF {
		return nil, ErrNotWorkbook
	}

	var targets []string
	pos := 0
	for pos+4 <= len(stream) {
		id := binary.LittleEndian.Uint16(stream[pos:])
		size := int(binary.LittleEndian.Uint16(stream[pos+2:]))
		pos += 4
		if pos+size > len(stream) {
			return nil, fmt.Errorf("workbook stream: %w", errTruncatedRecord)
		}
		data := stream[pos : pos+size]
		pos += size

		switch id {
		case recBOF:
			if len(data) >= 2 && binary.LittleEndian.Uint16(data) != biffVersionBIFF8 {
				return nil, ErrLegacyWorkbook
			}
		case recFilePass:
			if opts.Password != "" {
				return nil, errors.New("encrypted legacy workbook not supported")
			}
			return nil, ErrPasswordRequired
		case recSupBook:
			if target, ok := decodeSupBook(data); ok {
				targets = append(targets, target)
			}
		case recEOF:
			return targets, nil
		}
	}
	return targets, nil
}

// decodeSupBook returns the external workbook path of one SupBook record, or
// ok=false when the record does not reference another file: self-references,
// add-in references and DDE/OLE data sources all share the record id.
func decodeSupBook(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	ctab := binary.LittleEndian.Uint16(data[0:2])
	cch := binary.LittleEndian.Uint16(data[2:4])
	if cch == supBookSelf {
		return "", false
	}
	if ctab == 1 && cch == supBookAddIn {
		return "", false
	}
	if ctab == 0 {
		return "", false // DDE or OLE data source, not a workbook file
	}

	raw, err := decodeBIFF8String(data, 2)
	if err != nil {
		return "", false
	}
	return decodeVirtualPath(raw)
}

// decodeBIFF8String reads an XLUnicodeString with a 16-bit character count
// starting at off. Compressed strings store the low byte of each UTF-16 code
// unit; uncompressed ones store full little-endian code units.
func decodeBIFF8String(data []byte, off int) (string, error) {
	if off+3 > len(data) {
		return "", errTruncatedRecord
	}
	cch := int(binary.LittleEndian.Uint16(data[off:]))
	flags := data[off+2]
	off += 3

	if flags&0x08 != 0 { // rich-text run count
		if off+2 > len(data) {
			return "", errTruncatedRecord
		}
		off += 2
	}
	if flags&0x04 != 0 { // extended string size
		if off+4 > len(data) {
			return "", errTruncatedRecord
		}
		off += 4
	}

	if flags&0x01 != 0 {
		if off+2*cch > len(data) {
			return "", errTruncatedRecord
		}
		units := make([]uint16, cch)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(data[off+2*i:])
		}
		return string(utf16.Decode(units)), nil
	}

	if off+cch > len(data) {
		return "", errTruncatedRecord
	}
	runes := make([]rune, cch)
	for i, c := range data[off : off+cch] {
		runes[i] = rune(c)
	}
	return string(runes), nil
}

// decodeVirtualPath converts the encoded path of a SupBook record to display
// form. Encoded paths start with a 0x01 marker and replace volume and
// directory separators with control characters; unmarked strings are plain
// paths or URLs and pass through unchanged.
func decodeVirtualPath(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	switch s[0] {
	case 0x00, chSameVolume:
		// Empty name or a self-referential sheet name, not a file link.
		return "", false
	case chVolume:
		return decodeEncodedPath(s[1:]), true
	default:
		if s[0] < 0x20 {
			return "", false
		}
		return s, true
	}
}

func decodeEncodedPath(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case chVolume:
			if i+1 < len(runes) {
				i++
				if runes[i] == '@' {
					b.WriteString(`\\`)
				} else {
					b.WriteRune(runes[i])
					b.WriteByte(':')
				}
			}
		case chSameVolume, chDownDir:
			b.WriteByte('\\')
		case chUpDir:
			b.WriteString(`..\`)
		case chLongVolume, chStartupDir, chAltStartup, chLibDir:
			// Startup- and library-relative prefixes have no portable form.
		default:
			b.WriteRune(runes[i])
		}
	}
	return b.String()
}

// biffWorkbook holds targets extracted eagerly at open time; the underlying
// file is released before the handle exists, so Close has nothing to do.
type biffWorkbook struct {
	targets []string
}

func (w *biffWorkbook) LinkTargets() ([]string, error) {
	return w.targets, nil
}

func (w *biffWorkbook) Close() error {
	return nil
}
