package pdftext

import (
	"bytes"
	"compress/zlib"
	"encoding/hex"
	"io"
	"regexp"
	"strings"
	"unicode"
)

// rawScan pulls text straight out of the PDF byte stream without
// consulting the document structure. It collects ToUnicode CMap
// tables first, then decodes the Tj/TJ text operators in every
// content stream through them. Statements generated with CIDFont or
// Type0 encodings often only yield text this way.
func rawScan(data []byte) []string {
	streams := contentStreams(data)
	if len(streams) == 0 {
		return nil
	}

	cm := collectCMaps(streams)

	var chunks []string
	for _, stream := range streams {
		if text := streamText(inflate(stream), cm); text != "" {
			chunks = append(chunks, text)
		}
	}
	return mergeChunks(chunks)
}

// contentStreams returns every stream...endstream payload.
func contentStreams(data []byte) [][]byte {
	var streams [][]byte
	begin := []byte("stream")
	end := []byte("endstream")

	for offset := 0; offset < len(data); {
		i := bytes.Index(data[offset:], begin)
		if i < 0 {
			break
		}
		start := offset + i + len(begin)
		if start < len(data) && data[start] == '\r' {
			start++
		}
		if start < len(data) && data[start] == '\n' {
			start++
		}
		j := bytes.Index(data[start:], end)
		if j < 0 {
			break
		}
		if j > 0 {
			streams = append(streams, data[start:start+j])
		}
		offset = start + j + len(end)
	}
	return streams
}

// inflate undoes FlateDecode; other filters pass through untouched.
func inflate(data []byte) []byte {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return data
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return data
	}
	return out
}

var (
	hexShowOp  = regexp.MustCompile(`<([0-9A-Fa-f]+)>\s*Tj`)
	litShowOp  = regexp.MustCompile(`\(([^)]*)\)\s*Tj`)
	arrShowOp  = regexp.MustCompile(`\[([^\]]*)\]\s*TJ`)
	hexInArr   = regexp.MustCompile(`<([0-9A-Fa-f]+)>`)
	litInArr   = regexp.MustCompile(`\(([^)]*)\)`)
	nextLineOp = regexp.MustCompile(`\(([^)]*)\)\s*'`)
	moveTextOp = regexp.MustCompile(`[\d.\-]+\s+[\d.\-]+\s+T[dD]`)
)

// streamText decodes the text-showing operators of one content
// stream. Td/TD/T* position operators mark line breaks.
func streamText(data []byte, cm *cmap) string {
	content := string(data)
	if !strings.Contains(content, "Tj") && !strings.Contains(content, "TJ") &&
		!strings.Contains(content, "BT") {
		return ""
	}

	var lines []string
	for _, block := range textBlocks(content) {
		lines = append(lines, blockLines(block, cm)...)
	}

	// No BT/ET structure at all: harvest operators globally.
	if len(lines) == 0 {
		if text := looseText(content, cm); text != "" {
			lines = append(lines, text)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// textBlocks slices content into BT...ET spans.
func textBlocks(content string) []string {
	var blocks []string
	for {
		bt := strings.Index(content, "BT")
		if bt < 0 {
			break
		}
		et := strings.Index(content[bt:], "ET")
		if et < 0 {
			break
		}
		blocks = append(blocks, content[bt:bt+et+2])
		content = content[bt+et+2:]
	}
	return blocks
}

func blockLines(block string, cm *cmap) []string {
	var lines []string
	var cur strings.Builder

	flush := func() {
		if line := strings.TrimSpace(cur.String()); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	for _, op := range strings.Split(block, "\n") {
		op = strings.TrimSpace(op)

		if op == "T*" || moveTextOp.MatchString(op) {
			flush()
		}
		for _, m := range hexShowOp.FindAllStringSubmatch(op, -1) {
			cur.WriteString(decodeHex(m[1], cm))
		}
		for _, m := range litShowOp.FindAllStringSubmatch(op, -1) {
			cur.WriteString(decodeLiteral(m[1], cm))
		}
		for _, m := range arrShowOp.FindAllStringSubmatch(op, -1) {
			cur.WriteString(decodeArray(m[1], cm))
		}
		for _, m := range nextLineOp.FindAllStringSubmatch(op, -1) {
			flush()
			cur.WriteString(decodeLiteral(m[1], cm))
		}
	}
	flush()
	return lines
}

func looseText(content string, cm *cmap) string {
	var parts []string
	for _, m := range hexShowOp.FindAllStringSubmatch(content, -1) {
		if text := decodeHex(m[1], cm); text != "" {
			parts = append(parts, text)
		}
	}
	for _, m := range litShowOp.FindAllStringSubmatch(content, -1) {
		if text := decodeLiteral(m[1], cm); text != "" {
			parts = append(parts, text)
		}
	}
	for _, m := range arrShowOp.FindAllStringSubmatch(content, -1) {
		if text := decodeArray(m[1], cm); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func decodeHex(h string, cm *cmap) string {
	raw, err := hex.DecodeString(h)
	if err != nil {
		return ""
	}
	if text := cm.decode(raw); text != "" {
		return text
	}

	// No mapping: try UTF-16BE, the common Type0 identity layout.
	if len(raw) >= 2 && len(raw)%2 == 0 {
		var sb strings.Builder
		for i := 0; i+1 < len(raw); i += 2 {
			r := rune(raw[i])<<8 | rune(raw[i+1])
			if unicode.IsPrint(r) || r == ' ' {
				sb.WriteRune(r)
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return printableOnly(string(raw))
}

func decodeLiteral(s string, cm *cmap) string {
	unescaped := unescapeLiteral(s)
	if text := cm.decode([]byte(unescaped)); text != "" && mostlyPrintable(text) {
		return text
	}
	return printableOnly(unescaped)
}

// decodeArray walks a TJ array, decoding its strings in order. The
// interleaved kerning numbers are ignored.
func decodeArray(arr string, cm *cmap) string {
	type item struct {
		pos  int
		hex  bool
		body string
	}
	var items []item
	for _, idx := range hexInArr.FindAllStringSubmatchIndex(arr, -1) {
		items = append(items, item{pos: idx[0], hex: true, body: arr[idx[2]:idx[3]]})
	}
	for _, idx := range litInArr.FindAllStringSubmatchIndex(arr, -1) {
		items = append(items, item{pos: idx[0], body: arr[idx[2]:idx[3]]})
	}
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].pos < items[j-1].pos; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}

	var sb strings.Builder
	for _, it := range items {
		if it.hex {
			sb.WriteString(decodeHex(it.body, cm))
		} else {
			sb.WriteString(decodeLiteral(it.body, cm))
		}
	}
	return sb.String()
}

// unescapeLiteral resolves PDF string escapes, including octal codes.
func unescapeLiteral(s string) string {
	var buf strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			buf.WriteByte(s[i])
			continue
		}
		i++
		switch c := s[i]; c {
		case 'n':
			buf.WriteByte('\n')
		case 'r':
			buf.WriteByte('\r')
		case 't':
			buf.WriteByte('\t')
		case 'b':
			buf.WriteByte('\b')
		case 'f':
			buf.WriteByte('\f')
		case '(', ')', '\\':
			buf.WriteByte(c)
		default:
			if c >= '0' && c <= '7' {
				val := int(c - '0')
				for j := 0; j < 2 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '7'; j++ {
					i++
					val = val*8 + int(s[i]-'0')
				}
				if val < 256 {
					buf.WriteByte(byte(val))
				}
			} else {
				buf.WriteByte(c)
			}
		}
	}
	return buf.String()
}

func printableOnly(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		return -1
	}, s))
}

func mostlyPrintable(s string) bool {
	runes := []rune(s)
	if len(runes) == 0 {
		return false
	}
	printable := 0
	for _, r := range runes {
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' || r == ' ' {
			printable++
		}
	}
	return float64(printable)/float64(len(runes)) > 0.5
}

// mergeChunks folds per-stream text into a single logical page. The
// raw scan cannot see page boundaries, so downstream consumers get
// one combined page rather than a wrong split.
func mergeChunks(chunks []string) []string {
	var sb strings.Builder
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if len(c) <= 10 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(c)
	}
	if sb.Len() == 0 {
		for _, c := range chunks {
			if c = strings.TrimSpace(c); c != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(c)
			}
		}
	}
	if sb.Len() == 0 {
		return nil
	}
	return []string{sb.String()}
}
