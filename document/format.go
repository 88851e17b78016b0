package document

import (
	"errors"
	"io"
	"os"
)

// containerKind represents the detected binary container of a workbook file.
// Extensions are not trusted: estates are full of .xls files that are really
// OOXML packages and vice versa, so dispatch goes by content.
type containerKind int

const (
	containerUnknown containerKind = iota
	containerOLE2                  // compound file (magic: d0cf11e0a1b11ae1): BIFF .xls or an encrypted OOXML package
	containerZIP                   // ZIP package (magic: 504b0304): .xlsx, .xlsm, .xlsb
)

func (k containerKind) String() string {
	switch k {
	case containerOLE2:
		return "ole2"
	case containerZIP:
		return "zip"
	default:
		return "unknown"
	}
}

// sniffContainer reads the first bytes of a file and returns the detected container.
func sniffContainer(path string) (containerKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return containerUnknown, err
	}
	defer f.Close()

	buf := make([]byte, 8)
	n, err := f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return containerUnknown, err
	}
	if n < 4 {
		return containerUnknown, nil
	}

	// OLE2 Compound Document: d0 cf 11 e0 (full signature: d0cf11e0a1b11ae1)
	if buf[0] == 0xd0 && buf[1] == 0xcf && buf[2] == 0x11 && buf[3] == 0xe0 {
		return containerOLE2, nil
	}

	// ZIP (OOXML): PK\x03\x04
	if buf[0] == 0x50 && buf[1] == 0x4b && buf[2] == 0x03 && buf[3] == 0x04 {
		return containerZIP, nil
	}

	return containerUnknown, nil
}
