package extmem

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/outofcore/extmem/internal/constants"
)

// DiskConfigLine is one parsed "disk=" line from a config file: a path
// (or the unique-temp-file marker), a capacity in bytes, and a backend
// name.
type DiskConfigLine struct {
	Path     string
	Capacity int64
	Backend  string
	Temp     bool
}

// knownBackends is the set of backend names a config file may name.
// "boostfd" is accepted as an alias for "syscall", the closest analog
// to a boost::asio file-descriptor backend in this library.
var knownBackends = map[string]string{
	"syscall": "syscall",
	"mmap":    "mmap",
	"memory":  "memory",
	"aio":     "aio",
	"boostfd": "syscall",
}

// ParseCapacity parses a byte count with an optional K/M/G suffix
// (binary: 1024/1024^2/1024^3).
func ParseCapacity(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, NewError("parse_capacity", CodeConfigError, "empty capacity")
	}
	mult := int64(1)
	switch suffix := s[len(s)-1]; suffix {
	case 'K', 'k':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'G', 'g':
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, NewError("parse_capacity", CodeConfigError, fmt.Sprintf("invalid capacity %q", s))
	}
	return n * mult, nil
}

// ParseDiskConfigLine parses one line of the form
// "disk=<path> <capacity> <backend>".
func ParseDiskConfigLine(line string) (DiskConfigLine, error) {
	const prefix = "disk="
	if !strings.HasPrefix(line, prefix) {
		return DiskConfigLine{}, NewError("parse_disk_config", CodeConfigError, "line does not start with disk=")
	}
	fields := strings.Fields(strings.TrimPrefix(line, prefix))
	if len(fields) != 3 {
		return DiskConfigLine{}, NewError("parse_disk_config", CodeConfigError, "expected disk=<path> <capacity> <backend>")
	}
	cap_, err := ParseCapacity(fields[1])
	if err != nil {
		return DiskConfigLine{}, err
	}
	backend, ok := knownBackends[strings.ToLower(fields[2])]
	if !ok {
		return DiskConfigLine{}, NewError("parse_disk_config", CodeConfigError, fmt.Sprintf("unknown backend %q", fields[2]))
	}
	return DiskConfigLine{
		Path:     fields[0],
		Capacity: cap_,
		Backend:  backend,
		Temp:     fields[0] == constants.UniqueTempFileMarker,
	}, nil
}

// LoadDiskConfig reads every disk= line from path, skipping blank lines
// and lines starting with #.
func LoadDiskConfig(path string) ([]DiskConfigLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, WrapIOError("load_disk_config", -1, err)
	}
	defer f.Close()

	var entries []DiskConfigLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := ParseDiskConfigLine(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, WrapIOError("load_disk_config", -1, err)
	}
	return entries, nil
}

// ResolveConfigPath returns the config file path to use: explicit if
// non-empty, else the STXXL_CONFIG environment variable, else the
// conventional "./.stxxl" default.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(constants.ConfigEnvVar); env != "" {
		return env
	}
	return ".stxxl"
}
