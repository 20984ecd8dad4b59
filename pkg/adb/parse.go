package adb

import "strings"

// parseDeviceList extracts serials in "device" state from `adb devices`
// output.
func parseDeviceList(out string) []string {
	var serials []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "device" {
			serials = append(serials, fields[0])
		}
	}
	return serials
}

// packageListed reports whether `pm list packages` output contains the
// exact package. The pm query is a prefix filter, so "com.example.game"
// would also list "com.example.game.beta"; match the whole line.
func packageListed(out, pkg string) bool {
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "package:"+pkg {
			return true
		}
	}
	return false
}
