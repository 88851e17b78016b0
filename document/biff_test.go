package document

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"unicode/utf16"
)

func biffRecord(id uint16, payload []byte) []byte {
	rec := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint16(rec[0:], id)
	binary.LittleEndian.PutUint16(rec[2:], uint16(len(payload)))
	copy(rec[4:], payload)
	return rec
}

func biffBOF(version uint16) []byte {
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint16(payload[0:], version)
	binary.LittleEndian.PutUint16(payload[2:], 0x0005) // workbook globals
	return biffRecord(recBOF, payload)
}

// biffSupBook encodes a SupBook record with a compressed virtual path and no
// trailing sheet names.
func biffSupBook(ctab uint16, virtPath string) []byte {
	payload := make([]byte, 2, 5+len(virtPath))
	binary.LittleEndian.PutUint16(payload, ctab)
	payload = append(payload, byte(len(virtPath)), byte(len(virtPath)>>8), 0x00)
	payload = append(payload, []byte(virtPath)...)
	return biffRecord(recSupBook, payload)
}

func biffStream(records ...[]byte) []byte {
	var stream []byte
	for _, rec := range records {
		stream = append(stream, rec...)
	}
	return stream
}

func TestDecodeVirtualPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"empty", "", "", false},
		{"empty marker", "\x00", "", false},
		{"self reference", "\x02Sheet1", "", false},
		{"unknown control", "\x1fwhat", "", false},
		{"plain relative", "B.xls", "B.xls", true},
		{"url literal", "http://example.com/B.xls", "http://example.com/B.xls", true},
		{"marker same dir", "\x01B.xls", "B.xls", true},
		{"marker drive absolute", "\x01\x01C\x03estate\x03B.xls", `C:\estate\B.xls`, true},
		{"marker unc", "\x01\x01@fs01\x03shared\x03B.xls", `\\fs01\shared\B.xls`, true},
		{"marker parent dir", "\x01\x04B.xls", `..\B.xls`, true},
		{"marker down dir", "\x01sub\x03B.xls", `sub\B.xls`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeVirtualPath(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("decodeVirtualPath(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDecodeBIFF8String(t *testing.T) {
	t.Run("compressed", func(t *testing.T) {
		data := []byte{0x03, 0x00, 0x00, 'a', 'b', 'c'}
		got, err := decodeBIFF8String(data, 0)
		if err != nil || got != "abc" {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("utf16", func(t *testing.T) {
		units := utf16.Encode([]rune("Bücher"))
		data := []byte{byte(len(units)), 0x00, 0x01}
		for _, u := range units {
			data = append(data, byte(u), byte(u>>8))
		}
		got, err := decodeBIFF8String(data, 0)
		if err != nil || got != "Bücher" {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("rich text header skipped", func(t *testing.T) {
		data := []byte{0x02, 0x00, 0x08, 0x01, 0x00, 'h', 'i'}
		got, err := decodeBIFF8String(data, 0)
		if err != nil || got != "hi" {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		data := []byte{0x10, 0x00, 0x00, 'x'}
		if _, err := decodeBIFF8String(data, 0); err == nil {
			t.Fatal("expected error for truncated string")
		}
	})
}

func TestDecodeSupBook(t *testing.T) {
	t.Run("external workbook", func(t *testing.T) {
		rec := biffSupBook(2, "\x01\x01C\x03estate\x03B.xls")
		target, ok := decodeSupBook(rec[4:])
		if !ok || target != `C:\estate\B.xls` {
			t.Fatalf("got %q, %v", target, ok)
		}
	})

	t.Run("self reference skipped", func(t *testing.T) {
		payload := []byte{0x03, 0x00, 0x01, 0x04} // ctab=3, cch=0x0401
		if _, ok := decodeSupBook(payload); ok {
			t.Fatal("self-referencing SupBook must not produce a target")
		}
	})

	t.Run("add-in skipped", func(t *testing.T) {
		payload := []byte{0x01, 0x00, 0x01, 0x3A} // ctab=1, cch=0x3A01
		if _, ok := decodeSupBook(payload); ok {
			t.Fatal("add-in SupBook must not produce a target")
		}
	})

	t.Run("dde skipped", func(t *testing.T) {
		rec := biffSupBook(0, "WORKFLOW|Topic")
		if _, ok := decodeSupBook(rec[4:]); ok {
			t.Fatal("DDE SupBook must not produce a target")
		}
	})

	t.Run("short record skipped", func(t *testing.T) {
		if _, ok := decodeSupBook([]byte{0x01}); ok {
			t.Fatal("short SupBook must not produce a target")
		}
	})
}

func TestScanBIFFLinks(t *testing.T) {
	t.Run("collects external paths", func(t *testing.T) {
		selfSupBook := biffRecord(recSupBook, []byte{0x03, 0x00, 0x01, 0x04}) // ctab=3, cch=0x0401
		stream := biffStream(
			biffBOF(biffVersionBIFF8),
			selfSupBook,
			biffSupBook(2, "\x01\x01C\x03estate\x03B.xls"),
			biffSupBook(1, "\x01\x04C.xls"),
			biffRecord(recEOF, nil),
		)
		got, err := scanBIFFLinks(stream, OpenOptions{})
		if err != nil {
			t.Fatalf("scanBIFFLinks returned error: %v", err)
		}
		want := []string{`C:\estate\B.xls`, `..\C.xls`}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("targets = %v, want %v", got, want)
		}
	})

	t.Run("stops at globals EOF", func(t *testing.T) {
		stream := biffStream(
			biffBOF(biffVersionBIFF8),
			biffRecord(recEOF, nil),
			biffSupBook(2, "\x01after.xls"),
		)
		got, err := scanBIFFLinks(stream, OpenOptions{})
		if err != nil {
			t.Fatalf("scanBIFFLinks returned error: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("records after the globals substream leaked in: %v", got)
		}
	})

	t.Run("legacy version", func(t *testing.T) {
		stream := biffStream(biffBOF(0x0500), biffRecord(recEOF, nil))
		if _, err := scanBIFFLinks(stream, OpenOptions{}); !errors.Is(err, ErrLegacyWorkbook) {
			t.Fatalf("expected ErrLegacyWorkbook, got %v", err)
		}
	})

	t.Run("encrypted", func(t *testing.T) {
		stream := biffStream(
			biffBOF(biffVersionBIFF8),
			biffRecord(recFilePass, make([]byte, 6)),
			biffRecord(recEOF, nil),
		)
		if _, err := scanBIFFLinks(stream, OpenOptions{}); !errors.Is(err, ErrPasswordRequired) {
			t.Fatalf("expected ErrPasswordRequired, got %v", err)
		}
		if _, err := scanBIFFLinks(stream, OpenOptions{Password: "pw"}); err == nil || errors.Is(err, ErrPasswordRequired) {
			t.Fatalf("a password cannot unlock legacy encryption, got %v", err)
		}
	})

	t.Run("not a workbook stream", func(t *testing.T) {
		if _, err := scanBIFFLinks([]byte("garbage"), OpenOptions{}); !errors.Is(err, ErrNotWorkbook) {
			t.Fatalf("expected ErrNotWorkbook, got %v", err)
		}
	})

	t.Run("truncated record", func(t *testing.T) {
		stream := biffStream(biffBOF(biffVersionBIFF8))
		stream = append(stream, 0xAE, 0x01, 0xFF, 0x00, 0x01) // claims 255 bytes, has 1
		if _, err := scanBIFFLinks(stream, OpenOptions{}); err == nil {
			t.Fatal("expected error for truncated record")
		}
	})
}

// compoundStream is one named stream for writeCompoundDoc.
type compoundStream struct {
	name string
	data []byte
}

// writeCompoundFile writes a minimal OLE2 compound file with a single stream.
func writeCompoundFile(t *testing.T, path, streamName string, stream []byte) {
	t.Helper()
	writeCompoundDoc(t, path, compoundStream{name: streamName, data: stream})
}

// writeCompoundDoc writes a minimal OLE2 compound file. Every stream is
// padded to 4096 bytes so it lives in the regular FAT; workbook streams end
// their parsed content with an EOF record and property set streams carry
// their own offsets, so the padding is never read.
func writeCompoundDoc(t *testing.T, path string, streams ...compoundStream) {
	t.Helper()
	const sectorSize = 512
	const (
		endOfChain = 0xFFFFFFFE
		freeSect   = 0xFFFFFFFF
		fatSect    = 0xFFFFFFFD
		noStream   = 0xFFFFFFFF
	)
	if len(streams) == 0 || len(streams) > 3 {
		t.Fatalf("fixture holds 1 to 3 streams, got %d", len(streams))
	}

	padded := make([][]byte, len(streams))
	totalSectors := 0
	for i, s := range streams {
		data := make([]byte, len(s.data))
		copy(data, s.data)
		if len(data) < 4096 {
			data = append(data, make([]byte, 4096-len(data))...)
		}
		if rem := len(data) % sectorSize; rem != 0 {
			data = append(data, make([]byte, sectorSize-rem)...)
		}
		padded[i] = data
		totalSectors += len(data) / sectorSize
	}
	if 2+totalSectors > 128 {
		t.Fatalf("fixture streams too large for a single FAT sector")
	}

	out := make([]byte, sectorSize+sectorSize*(2+totalSectors))
	le16 := binary.LittleEndian.PutUint16
	le32 := binary.LittleEndian.PutUint32

	// Header.
	copy(out, []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1})
	le16(out[24:], 0x003E)     // minor version
	le16(out[26:], 0x0003)     // major version 3
	le16(out[28:], 0xFFFE)     // little-endian
	le16(out[30:], 0x0009)     // 512-byte sectors
	le16(out[32:], 0x0006)     // 64-byte mini sectors
	le32(out[44:], 1)          // one FAT sector
	le32(out[48:], 1)          // directory starts at sector 1
	le32(out[56:], 0x1000)     // mini stream cutoff
	le32(out[60:], endOfChain) // no mini FAT
	le32(out[68:], endOfChain) // no DIFAT overflow
	le32(out[76:], 0)          // DIFAT[0]: the FAT lives in sector 0
	for i := 1; i < 109; i++ {
		le32(out[76+4*i:], freeSect)
	}

	// FAT, sector 0. Streams are laid out back to back from sector 2.
	fat := out[sectorSize : 2*sectorSize]
	for i := 0; i < sectorSize/4; i++ {
		le32(fat[4*i:], freeSect)
	}
	le32(fat[0:], fatSect)
	le32(fat[4:], endOfChain) // directory chain is one sector
	sector := 2
	starts := make([]uint32, len(padded))
	for i, data := range padded {
		starts[i] = uint32(sector)
		n := len(data) / sectorSize
		for j := 0; j < n; j++ {
			next := uint32(endOfChain)
			if j < n-1 {
				next = uint32(sector + 1)
			}
			le32(fat[4*sector:], next)
			sector++
		}
	}

	// Directory, sector 1. The root's child chains the streams as right
	// siblings.
	dir := out[2*sectorSize : 3*sectorSize]
	writeEntry := func(entry []byte, name string, objType byte, right, child, start uint32, size uint64) {
		units := utf16.Encode([]rune(name))
		for i, u := range units {
			le16(entry[2*i:], u)
		}
		le16(entry[64:], uint16((len(units)+1)*2))
		entry[66] = objType
		entry[67] = 1 // black
		le32(entry[68:], noStream)
		le32(entry[72:], right)
		le32(entry[76:], child)
		le32(entry[116:], start)
		binary.LittleEndian.PutUint64(entry[120:], size)
	}
	writeEntry(dir[0:128], "Root Entry", 5, noStream, 1, endOfChain, 0)
	for i, s := range streams {
		right := uint32(noStream)
		if i < len(streams)-1 {
			right = uint32(i + 2)
		}
		writeEntry(dir[(i+1)*128:(i+2)*128], s.name, 2, right, noStream, starts[i], uint64(len(padded[i])))
	}
	for off := (len(streams) + 1) * 128; off < 512; off += 128 {
		le32(dir[off+68:], noStream)
		le32(dir[off+72:], noStream)
		le32(dir[off+76:], noStream)
	}

	offset := 3 * sectorSize
	for _, data := range padded {
		copy(out[offset:], data)
		offset += len(data)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
}

func TestFileHostOpen_BIFFWorkbook(t *testing.T) {
	stream := biffStream(
		biffBOF(biffVersionBIFF8),
		biffSupBook(2, "\x01\x01C\x03estate\x03B.xls"),
		biffSupBook(2, "\x01\x01@fs01\x03shared\x03C.xls"),
		biffRecord(recEOF, nil),
	)
	path := filepath.Join(t.TempDir(), "estate.xls")
	writeCompoundFile(t, path, "Workbook", stream)

	host := NewFileHost()
	defer host.Shutdown()
	doc, err := host.Open(path, OpenOptions{})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer doc.Close()

	got, err := doc.LinkTargets()
	if err != nil {
		t.Fatalf("LinkTargets returned error: %v", err)
	}
	want := []string{`C:\estate\B.xls`, `\\fs01\shared\C.xls`}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("targets = %v, want %v", got, want)
	}
}

func TestFileHostOpen_LegacyBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.xls")
	writeCompoundFile(t, path, "Book", []byte("legacy biff5 stream"))

	host := NewFileHost()
	defer host.Shutdown()
	if _, err := host.Open(path, OpenOptions{}); !errors.Is(err, ErrLegacyWorkbook) {
		t.Fatalf("expected ErrLegacyWorkbook, got %v", err)
	}
}

func TestFileHostOpen_CompoundWithoutWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.doc")
	writeCompoundFile(t, path, "WordDocument", []byte("prose, not cells"))

	host := NewFileHost()
	defer host.Shutdown()
	if _, err := host.Open(path, OpenOptions{}); !errors.Is(err, ErrNotWorkbook) {
		t.Fatalf("expected ErrNotWorkbook, got %v", err)
	}
}

func TestFileHostOpen_EncryptedBIFF(t *testing.T) {
	stream := biffStream(
		biffBOF(biffVersionBIFF8),
		biffRecord(recFilePass, make([]byte, 6)),
		biffRecord(recEOF, nil),
	)
	path := filepath.Join(t.TempDir(), "locked.xls")
	writeCompoundFile(t, path, "Workbook", stream)

	host := NewFileHost()
	defer host.Shutdown()
	_, err := host.Open(path, OpenOptions{})
	if !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}

	_, err = host.Open(path, OpenOptions{Password: "pw"})
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("expected unsupported-encryption error with a password, got %v", err)
	}
}
