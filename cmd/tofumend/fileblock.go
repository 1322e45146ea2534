package main

import "strings"

// File-block wire format: each file travels as
//
//	[START FILE: <relative-path>]
//	<raw content>
//	[END FILE]
//
// with blocks separated by a blank line. Content is placed between the
// markers verbatim; paths must not contain a newline or the end-marker
// literal.
const (
	fileStartPrefix = "[START FILE: "
	fileStartSuffix = "]"
	fileEndMarker   = "[END FILE]"
)

func encodeFileBlocks(files *fileSet) string {
	var b strings.Builder
	for _, path := range files.Paths() {
		content, _ := files.Get(path)
		b.WriteString(fileStartPrefix)
		b.WriteString(path)
		b.WriteString(fileStartSuffix)
		b.WriteString("\n")
		b.WriteString(content)
		b.WriteString("\n")
		b.WriteString(fileEndMarker)
		b.WriteString("\n\n")
	}
	return b.String()
}

// decodeFileBlocks scans free text for file blocks. The source is untrusted
// model output, so the scanner is deliberately lenient: lines outside any
// open block are dropped, and a start marker seen while a block is open
// abandons the unclosed block without committing it. Decoding never fails;
// at worst it returns an empty set, which callers treat as a format
// mismatch rather than "no changes".
func decodeFileBlocks(text string) *fileSet {
	files := newFileSet()

	inFile := false
	current := ""
	var buf []string

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, fileStartPrefix) && strings.HasSuffix(line, fileStartSuffix):
			current = line[len(fileStartPrefix) : len(line)-len(fileStartSuffix)]
			buf = buf[:0]
			inFile = true
		case strings.TrimSpace(line) == fileEndMarker:
			if inFile {
				files.Set(current, strings.Join(buf, "\n"))
				inFile = false
			}
		default:
			if inFile {
				buf = append(buf, line)
			}
		}
	}
	return files
}
