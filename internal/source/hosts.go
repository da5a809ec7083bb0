package source

import "strings"

// hostMatcher matches exact hosts and "*.suffix" wildcards.
type hostMatcher struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostMatcher(patterns ...string) *hostMatcher {
	m := &hostMatcher{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "www.")
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			m.suffixes = append(m.suffixes, strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			m.suffixes = append(m.suffixes, strings.TrimPrefix(value, "."))
		default:
			m.exact[value] = struct{}{}
		}
	}
	return m
}

// Match reports whether host is allowed. A leading "www." is ignored.
func (m *hostMatcher) Match(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
	if host == "" {
		return false
	}
	if _, ok := m.exact[host]; ok {
		return true
	}
	for _, suffix := range m.suffixes {
		if suffix != "" && (host == suffix || strings.HasSuffix(host, "."+suffix)) {
			return true
		}
	}
	return false
}
