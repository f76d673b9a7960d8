package config

import (
	"os"
	"strings"
)

// CleanFileName removes characters which cannot be used in a file name on
// this platform. Leading dots are dropped so result is never hidden.
func CleanFileName(in string) string {
	out := strings.Map(func(sym rune) rune {
		if sym == 0 || strings.ContainsRune(forbiddenNameChars+string(os.PathSeparator)+string(os.PathListSeparator), sym) {
			return -1
		}
		return sym
	}, in)
	out = strings.TrimLeft(strings.TrimSpace(out), ".")
	if len(out) == 0 {
		out = "_bad_file_name_"
	}
	return out
}
