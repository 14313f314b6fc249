// Package ports converts between compose port-mapping strings and a
// host-to-container port map.
package ports

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/trly/pei-docker/internal/cfgerr"
)

// Mapping maps a host port to a container port.
type Mapping map[int]int

const (
	minPort = 1
	maxPort = 65535
)

// Decode parses entries of the form "HOST:CONTAINER" or
// "HSTART-HEND:CSTART-CEND" into a Mapping. Later entries override earlier
// ones for the same host port.
func Decode(entries []string) (Mapping, error) {
	out := Mapping{}
	for _, entry := range entries {
		if err := decodeInto(out, entry); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeInto(out Mapping, entry string) error {
	hostPart, containerPart, ok := strings.Cut(strings.TrimSpace(entry), ":")
	if !ok || strings.Contains(containerPart, ":") {
		return cfgerr.Formatf(cfgerr.ErrInvalidPort, "", entry, "expected HOST:CONTAINER")
	}

	hostStart, hostEnd, err := parseSpan(hostPart)
	if err != nil {
		return cfgerr.Formatf(cfgerr.ErrInvalidPort, "", entry, "host side: %v", err)
	}
	containerStart, containerEnd, err := parseSpan(containerPart)
	if err != nil {
		return cfgerr.Formatf(cfgerr.ErrInvalidPort, "", entry, "container side: %v", err)
	}

	if hostEnd-hostStart != containerEnd-containerStart {
		return cfgerr.Formatf(cfgerr.ErrPortRangeMismatch, "", entry,
			"host range spans %d ports but container range spans %d",
			hostEnd-hostStart+1, containerEnd-containerStart+1)
	}

	for offset := 0; offset <= hostEnd-hostStart; offset++ {
		out[hostStart+offset] = containerStart + offset
	}
	return nil
}

func parseSpan(s string) (int, int, error) {
	startStr, endStr, isRange := strings.Cut(s, "-")
	start, err := parsePort(startStr)
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return start, start, nil
	}
	end, err := parsePort(endStr)
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("range %d-%d is descending", start, end)
	}
	return start, end, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is not a port number", s)
	}
	if p < minPort || p > maxPort {
		return 0, fmt.Errorf("port %d out of range %d-%d", p, minPort, maxPort)
	}
	return p, nil
}

// Encode renders m as compose port strings, sorted by host port. Consecutive
// entries where host and container ports both advance by one collapse into a
// single range entry.
func Encode(m Mapping) []string {
	if len(m) == 0 {
		return []string{}
	}

	hosts := make([]int, 0, len(m))
	for h := range m {
		hosts = append(hosts, h)
	}
	sort.Ints(hosts)

	out := make([]string, 0, len(hosts))
	runStart := 0
	for i := 1; i <= len(hosts); i++ {
		if i < len(hosts) && hosts[i] == hosts[i-1]+1 && m[hosts[i]] == m[hosts[i-1]]+1 {
			continue
		}
		out = append(out, formatRun(hosts[runStart], hosts[i-1], m[hosts[runStart]], m[hosts[i-1]]))
		runStart = i
	}
	return out
}

func formatRun(hostStart, hostEnd, containerStart, containerEnd int) string {
	if hostStart == hostEnd {
		return fmt.Sprintf("%d:%d", hostStart, containerStart)
	}
	return fmt.Sprintf("%d-%d:%d-%d", hostStart, hostEnd, containerStart, containerEnd)
}

// Merge copies src into dst, src winning on host port collisions.
func Merge(dst, src Mapping) Mapping {
	if dst == nil {
		dst = Mapping{}
	}
	for h, c := range src {
		dst[h] = c
	}
	return dst
}

// Clone returns a copy of m.
func Clone(m Mapping) Mapping {
	return Merge(Mapping{}, m)
}
