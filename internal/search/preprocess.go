package search

import (
	"bufio"
	"bytes"
	"strings"
)

// FlattenMarkdownTables rewrites every markdown table row in data as a
// standalone fact paragraph ("| Gen Z | Nashville |" becomes "Gen Z
// Nashville"), so each row can be retrieved on its own. Separator rows are
// dropped. Lines outside tables pass through unchanged. When data holds no
// table the original bytes are returned.
//
// Notes:
//   - Avoids emitting a leading blank line.
//   - Normalizes the tail to end with exactly one newline.
func FlattenMarkdownTables(data []byte) ([]byte, error) {
	var b strings.Builder
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	wroteBlank := true // start true to avoid a leading blank
	sawTable := false

	blank := func() {
		if !wroteBlank {
			b.WriteByte('\n')
			wroteBlank = true
		}
	}
	writeFact := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		blank()
		b.WriteString(s)
		b.WriteString("\n\n")
		wroteBlank = true
	}

	for sc.Scan() {
		raw := sc.Text()
		line := strings.TrimSpace(raw)
		if line == "" {
			blank()
			continue
		}

		// table row: "| ... |"
		if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") && len(line) > 1 {
			sawTable = true
			cols := strings.Split(strings.Trim(line, "|"), "|")

			allSep := true
			cleaned := make([]string, 0, len(cols))
			for _, c := range cols {
				cell := strings.TrimSpace(c)
				if cell != "" {
					cleaned = append(cleaned, cell)
				}
				tmp := strings.ReplaceAll(cell, ":", "")
				tmp = strings.ReplaceAll(tmp, "-", "")
				if strings.TrimSpace(tmp) != "" {
					allSep = false
				}
			}
			if allSep || len(cleaned) == 0 {
				continue
			}
			writeFact(strings.Join(cleaned, " "))
			continue
		}

		b.WriteString(strings.TrimRight(raw, " \t\r"))
		b.WriteByte('\n')
		wroteBlank = false
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if !sawTable {
		return data, nil
	}
	return []byte(strings.TrimRight(b.String(), "\n") + "\n"), nil
}
