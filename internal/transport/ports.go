package transport

import (
	"runtime"
	"sort"
	"strings"

	"go.bug.st/serial"
)

// conventionalPOSIXPrefixes are the tty path shapes real datáfono
// installs are found under on Linux/macOS hosts.
var conventionalPOSIXPrefixes = []string{
	"/dev/ttyUSB",
	"/dev/ttyACM",
	"/dev/ttyS",
	"/dev/cu.usbserial",
	"/dev/cu.usbmodem",
}

// EnumeratePorts lists the serial devices visible to the OS, used both by
// the GET /ports operator endpoint and by the real transport's COM3
// fallback.
func EnumeratePorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(ports)
	return ports, nil
}

// resolvePortPath implements §4.2's device-name resolution: the configured
// name is used as-is, except on non-Windows hosts where the configured
// name is the literal "COM3" — a default that only makes sense on
// Windows — in which case the first enumerated port matching a
// conventional POSIX tty path is used instead.
func resolvePortPath(configured string) (string, error) {
	if runtime.GOOS == "windows" || configured != "COM3" {
		return configured, nil
	}

	ports, err := EnumeratePorts()
	if err != nil {
		return configured, nil // fall back to the configured name if enumeration fails
	}
	for _, p := range ports {
		for _, prefix := range conventionalPOSIXPrefixes {
			if strings.HasPrefix(p, prefix) {
				return p, nil
			}
		}
	}
	return configured, nil
}
