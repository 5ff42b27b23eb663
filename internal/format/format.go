// Package format holds the small display helpers shared by the HTTP surface
// and the CLI.
package format

import (
	"math"
	"strconv"
	"strings"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count for humans: base-1024 units up to GB,
// at most two decimal places, and "0 Bytes" for zero.
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := math.Round(float64(bytes)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// FileExtension returns the upper-cased extension of a filename, or
// "Unknown" when the name has none.
func FileExtension(filename string) string {
	parts := strings.Split(filename, ".")
	if len(parts) < 2 || parts[len(parts)-1] == "" {
		return "Unknown"
	}
	return strings.ToUpper(parts[len(parts)-1])
}
