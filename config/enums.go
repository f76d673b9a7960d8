package config

import (
	"fmt"
	"strings"
)

// Specification of requested output type.
type OutputFmt int

const (
	OutputFmtHtml OutputFmt = iota
	OutputFmtXhtml
)

var outputFmtNames = []string{"html", "xhtml"}

// OutputFmtNames returns list of possible string values of OutputFmt.
func OutputFmtNames() []string {
	names := make([]string, len(outputFmtNames))
	copy(names, outputFmtNames)
	return names
}

func (o OutputFmt) String() string {
	if o < 0 || int(o) >= len(outputFmtNames) {
		return fmt.Sprintf("OutputFmt(%d)", int(o))
	}
	return outputFmtNames[o]
}

// IsValid reports whether o is a known output format.
func (o OutputFmt) IsValid() bool {
	return o >= 0 && int(o) < len(outputFmtNames)
}

// ParseOutputFmt attempts to convert a string to OutputFmt, case insensitive.
func ParseOutputFmt(name string) (OutputFmt, error) {
	for i, n := range outputFmtNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return OutputFmt(i), nil
		}
	}
	return OutputFmt(-1), fmt.Errorf("%s is not a valid OutputFmt, try [%s]", name, strings.Join(outputFmtNames, ", "))
}

// MarshalText implements encoding.TextMarshaler.
func (o OutputFmt) MarshalText() ([]byte, error) {
	if !o.IsValid() {
		return nil, fmt.Errorf("unable to marshal %s", o)
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OutputFmt) UnmarshalText(text []byte) error {
	v, err := ParseOutputFmt(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Ext returns file extension for the format.
func (o OutputFmt) Ext() string {
	switch o {
	case OutputFmtHtml:
		return ".html"
	case OutputFmtXhtml:
		return ".xhtml"
	default:
		// this should never happen
		panic("unsupported format requested")
	}
}
