package pdftext

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf16"
)

// cmap maps glyph codes to Unicode text, built from the ToUnicode
// tables embedded in the PDF. Keys are uppercase hex code strings;
// codeLen is the code width in bytes, taken from the first mapping.
type cmap struct {
	codes   map[string]string
	codeLen int
}

var (
	bfCharBlock  = regexp.MustCompile(`(?s)beginbfchar\s*(.*?)\s*endbfchar`)
	bfRangeBlock = regexp.MustCompile(`(?s)beginbfrange\s*(.*?)\s*endbfrange`)
	hexToken     = regexp.MustCompile(`<([0-9A-Fa-f]+)>`)
)

// collectCMaps merges every ToUnicode table found across the given
// streams into one lookup.
func collectCMaps(streams [][]byte) *cmap {
	cm := &cmap{codes: make(map[string]string)}
	for _, stream := range streams {
		content := string(inflate(stream))
		if !strings.Contains(content, "beginbfchar") && !strings.Contains(content, "beginbfrange") {
			continue
		}
		cm.parse(content)
	}
	return cm
}

func (cm *cmap) parse(content string) {
	// bfchar entries pair one source code with one Unicode value.
	for _, block := range bfCharBlock.FindAllStringSubmatch(content, -1) {
		tokens := hexToken.FindAllStringSubmatch(block[1], -1)
		for i := 0; i+1 < len(tokens); i += 2 {
			cm.put(strings.ToUpper(tokens[i][1]), utf16FromHex(tokens[i+1][1]))
		}
	}

	// bfrange entries cover a span: either an incrementing base value
	// or an explicit array of destinations.
	for _, block := range bfRangeBlock.FindAllStringSubmatch(content, -1) {
		for _, line := range strings.Split(block[1], "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.Contains(line, "[") {
				cm.parseRangeArray(line)
				continue
			}
			tokens := hexToken.FindAllStringSubmatch(line, -1)
			if len(tokens) < 3 {
				continue
			}
			start, end := hexValue(tokens[0][1]), hexValue(tokens[1][1])
			dst := hexValue(tokens[2][1])
			if start < 0 || end < 0 || dst < 0 {
				continue
			}
			width := len(tokens[0][1])
			for code := start; code <= end; code++ {
				cm.put(hexKey(code, width), utf16FromHex(hexKey(dst+code-start, len(tokens[2][1]))))
			}
		}
	}
}

func (cm *cmap) parseRangeArray(line string) {
	bracket := strings.Index(line, "[")
	tokens := hexToken.FindAllStringSubmatch(line[:bracket], -1)
	if len(tokens) < 2 {
		return
	}
	start := hexValue(tokens[0][1])
	width := len(tokens[0][1])
	for i, dst := range hexToken.FindAllStringSubmatch(line[bracket:], -1) {
		cm.put(hexKey(start+i, width), utf16FromHex(dst[1]))
	}
}

func (cm *cmap) put(key, text string) {
	if text == "" {
		return
	}
	if cm.codeLen == 0 {
		cm.codeLen = len(key) / 2
	}
	cm.codes[key] = text
}

// decode translates raw string bytes through the table. Unknown
// multi-byte codes fall back to a single-byte lookup before the next
// code is read; bare printable ASCII passes through in single-byte
// tables.
func (cm *cmap) decode(raw []byte) string {
	if len(cm.codes) == 0 {
		return ""
	}
	width := cm.codeLen
	if width < 1 {
		width = 1
	}

	var sb strings.Builder
	for i := 0; i <= len(raw)-width; i += width {
		chunk := raw[i : i+width]
		if text, ok := cm.codes[strings.ToUpper(hex.EncodeToString(chunk))]; ok {
			sb.WriteString(text)
			continue
		}
		if width > 1 {
			if text, ok := cm.codes[strings.ToUpper(hex.EncodeToString(chunk[:1]))]; ok {
				sb.WriteString(text)
				i -= width - 1
				continue
			}
		}
		if width == 1 && chunk[0] >= 32 && chunk[0] < 127 {
			sb.WriteByte(chunk[0])
		}
	}
	return sb.String()
}

func hexValue(h string) int {
	val := 0
	for _, c := range strings.ToUpper(h) {
		val <<= 4
		switch {
		case c >= '0' && c <= '9':
			val += int(c - '0')
		case c >= 'A' && c <= 'F':
			val += int(c-'A') + 10
		default:
			return -1
		}
	}
	return val
}

// hexKey renders code as uppercase hex of exactly width digits.
func hexKey(code, width int) string {
	h := fmt.Sprintf("%0*X", width, code)
	if len(h) > width {
		h = h[len(h)-width:]
	}
	return h
}

// utf16FromHex converts a hex-encoded UTF-16BE destination value to a
// string, resolving surrogate pairs.
func utf16FromHex(h string) string {
	if len(h)%2 != 0 {
		h = "0" + h
	}
	data, err := hex.DecodeString(h)
	if err != nil {
		return ""
	}

	if len(data) == 4 {
		hi := rune(data[0])<<8 | rune(data[1])
		lo := rune(data[2])<<8 | rune(data[3])
		if hi >= 0xD800 && hi <= 0xDBFF && lo >= 0xDC00 && lo <= 0xDFFF {
			return string(utf16.DecodeRune(hi, lo))
		}
	}

	var sb strings.Builder
	for i := 0; i+1 < len(data); i += 2 {
		sb.WriteRune(rune(data[i])<<8 | rune(data[i+1]))
	}
	return sb.String()
}
