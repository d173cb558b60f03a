package humanize

import "fmt"

var units = []string{"B", "KB", "MB", "GB", "TB"}

// Size reduces a byte count to a value under 1024 plus the matching
// unit label.
func Size(i int64) (float64, string) {
	v := float64(i)

	for _, u := range units[:len(units)-1] {
		if v < 1024 {
			return v, u
		}

		v /= 1024
	}

	return v, units[len(units)-1]
}

// String renders a byte count like "3.25MB".
func String(i int64) string {
	v, u := Size(i)
	return fmt.Sprintf("%.2f%s", v, u)
}
