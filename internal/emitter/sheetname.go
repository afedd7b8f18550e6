package emitter

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxSheetNameLength is Excel's limit on sheet names, in characters.
const MaxSheetNameLength = 31

const fallbackSheetName = "Sheet"

// sheetNameReplacer maps the zone separator and the characters Excel
// rejects in sheet names to underscores.
var sheetNameReplacer = strings.NewReplacer(
	".", "_",
	":", "_",
	`\`, "_",
	"/", "_",
	"?", "_",
	"*", "_",
	"[", "_",
	"]", "_",
)

// SheetName derives a valid sheet name from a category name. A name that is
// already valid comes back unchanged.
func SheetName(category string) string {
	name := strings.TrimFunc(category, isSheetNameEdge)
	name = sheetNameReplacer.Replace(name)
	name = truncateRunes(name, MaxSheetNameLength)
	name = strings.TrimRightFunc(name, isSheetNameEdge)
	if name == "" {
		return fallbackSheetName
	}
	return name
}

// isSheetNameEdge matches what a sheet name may not start or end with here:
// whitespace, the zone root dot, and the apostrophe Excel forbids.
func isSheetNameEdge(r rune) bool {
	return r == '.' || r == '\'' || unicode.IsSpace(r)
}

// SheetNamer hands out unique sheet names for one workbook. Excel compares
// sheet names without case, so "ec2" and "EC2" collide. A colliding name gets
// " (2)", " (3)", ... with the base shortened to stay within the limit.
type SheetNamer struct {
	used map[string]bool
}

// NewSheetNamer creates an empty namer.
func NewSheetNamer() *SheetNamer {
	return &SheetNamer{used: make(map[string]bool)}
}

// Assign returns the sheet name for category and reserves it.
func (n *SheetNamer) Assign(category string) string {
	base := SheetName(category)
	name := base
	for i := 2; n.used[strings.ToLower(name)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		name = truncateRunes(base, MaxSheetNameLength-utf8.RuneCountInString(suffix)) + suffix
	}
	n.used[strings.ToLower(name)] = true
	return name
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
