package irpack

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// canonicalName normalises an identifier to NFC.
func canonicalName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// isSlotNumber reports whether name is a printed slot number, which
// stands for an unnamed value.
func isSlotNumber(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return false
		}
	}
	return true
}

// valueName maps a wire name to the name stored in the module.
func valueName(name string) string {
	if isSlotNumber(name) {
		return ""
	}
	return name
}

// blockName drops the generated label of an unnamed block.
func blockName(name string, index int) string {
	if name == "bb"+strconv.Itoa(index) {
		return ""
	}
	return name
}
