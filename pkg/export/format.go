package export

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format represents a file format
type Format string

const (
	FormatMIDI    Format = "midi"
	FormatUnknown Format = "unknown"
)

// DetectFormat detects the format of a file based on its extension
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mid", ".midi", ".smf":
		return FormatMIDI
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent checks for the "MThd" header chunk
func DetectFormatFromContent(data []byte) Format {
	if len(data) >= 4 && string(data[:4]) == "MThd" {
		return FormatMIDI
	}
	return FormatUnknown
}

// FileName builds "<base>_original.mid" for order < 0 and
// "<base>_order<k>_ex<i>.mid" otherwise, i counted from 1.
func FileName(base string, order, index int) string {
	if order < 0 {
		return base + "_original.mid"
	}
	return fmt.Sprintf("%s_order%d_ex%d.mid", base, order, index)
}
