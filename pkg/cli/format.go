package cli

import "fmt"

// FormatBytes renders a byte count with a binary-unit suffix.
func FormatBytes(n int64) string {
	const step = 1024
	if n < step {
		return fmt.Sprintf("%d B", n)
	}
	units := []string{"KB", "MB", "GB", "TB"}
	v := float64(n)
	for i, u := range units {
		v /= step
		if v < step || i == len(units)-1 {
			return fmt.Sprintf("%.2f %s", v, u)
		}
	}
	return fmt.Sprintf("%d B", n)
}

// FormatBytesInt is FormatBytes for int counts, as produced by len().
func FormatBytesInt(n int) string {
	return FormatBytes(int64(n))
}
