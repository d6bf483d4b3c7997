package siem

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/epam/rule-engine/internal/domain/report"
)

// genericFindingWire is the JSON envelope pushed for one GenericFinding: the
// finding's fields plus its resource table rendered in the requested
// attachment mode (§4.3.8).
type genericFindingWire struct {
	RuleName         string                `json:"rule_name"`
	Region           string                `json:"region"`
	Severity         string                `json:"severity"`
	Description      string                `json:"description"`
	Remediation      string                `json:"remediation"`
	AttachmentFormat report.AttachmentFormat `json:"attachment_format"`
	Attachment       string                `json:"attachment"`
}

func encodeGenericFindings(findings []report.GenericFinding, format report.AttachmentFormat) ([][]byte, error) {
	out := make([][]byte, 0, len(findings))
	for _, f := range findings {
		attachment, err := encodeAttachment(f.Resources, format)
		if err != nil {
			return nil, fmt.Errorf("siem: encoding attachment for %s/%s: %w", f.RuleName, f.Region, err)
		}
		wire := genericFindingWire{
			RuleName:         f.RuleName,
			Region:           f.Region,
			Severity:         string(f.Severity),
			Description:      f.Description,
			Remediation:      f.Remediation,
			AttachmentFormat: format,
			Attachment:       attachment,
		}
		b, err := json.Marshal(wire)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// encodeAttachment renders a finding's resource table in one of the four
// §4.3.8 attachment modes.
func encodeAttachment(resources []map[string]any, format report.AttachmentFormat) (string, error) {
	switch format {
	case report.AttachmentJSON:
		b, err := json.Marshal(resources)
		return string(b), err
	case report.AttachmentMarkdown:
		return markdownTable(resources), nil
	case report.AttachmentCSVBase64:
		csvBytes, err := csvEncode(resources)
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(csvBytes), nil
	case report.AttachmentXLSX:
		xlsxBytes, err := xlsxEncode(resources)
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(xlsxBytes), nil
	default:
		return "", fmt.Errorf("unsupported attachment format %q", format)
	}
}

// tableColumns returns the union of resource map keys, sorted, so every
// attachment mode renders a stable column order regardless of Go's
// randomized map iteration.
func tableColumns(resources []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, r := range resources {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func markdownTable(resources []map[string]any) string {
	cols := tableColumns(resources)
	if len(cols) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")
	for _, r := range resources {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = cellString(r[c])
		}
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return b.String()
}

func csvEncode(resources []map[string]any) ([]byte, error) {
	cols := tableColumns(resources)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return nil, err
	}
	for _, r := range resources {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = cellString(r[c])
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// xlsxEncode builds a minimal single-sheet .xlsx workbook by hand: the
// format is a zip archive of a handful of small XML parts. No xlsx library
// appears anywhere in the retrieval corpus, so this is built directly on
// archive/zip + a literal OOXML template rather than reaching for an
// unavailable third-party writer.
func xlsxEncode(resources []map[string]any) ([]byte, error) {
	cols := tableColumns(resources)

	var sheet strings.Builder
	sheet.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	sheet.WriteString(`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)
	writeRow(&sheet, cols)
	for _, r := range resources {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = cellString(r[c])
		}
		writeRow(&sheet, row)
	}
	sheet.WriteString(`</sheetData></worksheet>`)

	const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>
<Override PartName="/xl/worksheets/sheet1.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>
</Types>`

	const rootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/>
</Relationships>`

	const workbook = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Resources" sheetId="1" r:id="rId1"/></sheets>
</workbook>`

	const workbookRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>
</Relationships>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml":     contentTypes,
		"_rels/.rels":             rootRels,
		"xl/workbook.xml":         workbook,
		"xl/_rels/workbook.xml.rels": workbookRels,
		"xl/worksheets/sheet1.xml": sheet.String(),
	}
	for name, content := range files {
		fw, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRow(sheet *strings.Builder, cells []string) {
	sheet.WriteString("<row>")
	for _, c := range cells {
		sheet.WriteString("<c t=\"inlineStr\"><is><t>")
		sheet.WriteString(xmlEscape(c))
		sheet.WriteString("</t></is></c>")
	}
	sheet.WriteString("</row>")
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;", "'", "&apos;")
	return r.Replace(s)
}
