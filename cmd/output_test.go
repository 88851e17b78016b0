package cmd

import (
	"bytes"
	"testing"

	"github.com/estatescan/xlinks/scan"
)

func TestWriteCSV(t *testing.T) {
	rows := []scan.Row{
		{Workbook: `C:\estate\A.xls`, Link: `\\fs01\shared\B.xls`},
		{Workbook: `C:\estate\A.xls`, Link: `C:\estate, archive\C.xls`},
		{Workbook: `C:\estate\E.xls`, Exception: "not a spreadsheet workbook"},
	}

	var buf bytes.Buffer
	if err := writeCSV(&buf, rows); err != nil {
		t.Fatalf("writeCSV returned error: %v", err)
	}

	want := "Workbook,Link,Exception\n" +
		`C:\estate\A.xls,\\fs01\shared\B.xls,` + "\n" +
		`C:\estate\A.xls,"C:\estate, archive\C.xls",` + "\n" +
		`C:\estate\E.xls,,not a spreadsheet workbook` + "\n"
	if buf.String() != want {
		t.Errorf("writeCSV output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteCSV_NoRows(t *testing.T) {
	var buf bytes.Buffer
	if err := writeCSV(&buf, nil); err != nil {
		t.Fatalf("writeCSV returned error: %v", err)
	}
	if buf.String() != "Workbook,Link,Exception\n" {
		t.Errorf("expected header only, got %q", buf.String())
	}
}

func TestExitError_SilentMessage(t *testing.T) {
	err := &ExitError{Code: 2}
	if err.Error() != "" {
		t.Errorf("ExitError must not print a message, got %q", err.Error())
	}
}
