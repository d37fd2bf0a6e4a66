package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Host is a resolved host identity: who to connect to and as whom.
// Username and Port may be empty/zero, meaning "decide later" (SSH config
// lookup for the username, protocol default for the port).
type Host struct {
	Username string
	Hostname string
	Port     int
}

// String renders the host the way an operator wrote it.
func (h Host) String() string {
	s := h.Hostname
	if h.Username != "" {
		s = h.Username + "@" + s
	}
	if h.Port != 0 {
		s = s + ":" + strconv.Itoa(h.Port)
	}
	return s
}

// Destination renders the user@host form ssh accepts as a destination.
// The port never appears here: ssh rejects host:port destinations, so an
// explicit port travels as a separate -p argument (see SSHCommand).
func (h Host) Destination() string {
	if h.Username != "" {
		return h.Username + "@" + h.Hostname
	}
	return h.Hostname
}

// ParseHost parses a host spec of the form [user@]host[:port]. A username
// or port in the spec takes precedence over the defaults, which come from
// the -u/-p flags.
func ParseHost(spec string, defaultUser string, defaultPort int) (Host, error) {
	h := Host{Username: defaultUser, Port: defaultPort}

	rest := spec
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		h.Username = rest[:at]
		rest = rest[at+1:]
	}
	if colon := strings.LastIndex(rest, ":"); colon >= 0 {
		port, err := strconv.Atoi(rest[colon+1:])
		if err != nil || port <= 0 || port > 65535 {
			return Host{}, fmt.Errorf("invalid port in host spec %q", spec)
		}
		h.Port = port
		rest = rest[:colon]
	}
	if rest == "" {
		return Host{}, fmt.Errorf("empty hostname in host spec %q", spec)
	}
	h.Hostname = rest
	return h, nil
}

// ResolveClusterTags replaces cluster tags in specs with their host lists,
// recursively, preserving order. Tags referencing themselves (directly or
// through other tags) stop expanding instead of looping.
func ResolveClusterTags(specs []string, clusters []Cluster) []string {
	return resolveClusterTags(specs, clusters, make(map[string]bool))
}

func resolveClusterTags(specs []string, clusters []Cluster, expanding map[string]bool) []string {
	var resolved []string
	for _, spec := range specs {
		matched := false
		for _, cluster := range clusters {
			if spec != cluster.Name || expanding[cluster.Name] {
				continue
			}
			matched = true
			expanding[cluster.Name] = true
			resolved = append(resolved, resolveClusterTags(cluster.Hosts, clusters, expanding)...)
			delete(expanding, cluster.Name)
			break
		}
		if !matched {
			resolved = append(resolved, spec)
		}
	}
	return resolved
}

// ExpandBraces expands a single numeric brace range in a host spec,
// e.g. "web{1..3}" -> web1, web2, web3. Specs without a range pass
// through unchanged; malformed ranges are left literal rather than
// guessed at.
func ExpandBraces(spec string) []string {
	open := strings.Index(spec, "{")
	end := strings.Index(spec, "}")
	if open < 0 || end < open {
		return []string{spec}
	}

	inner := spec[open+1 : end]
	bounds := strings.SplitN(inner, "..", 2)
	if len(bounds) != 2 {
		return []string{spec}
	}
	lo, errLo := strconv.Atoi(bounds[0])
	hi, errHi := strconv.Atoi(bounds[1])
	if errLo != nil || errHi != nil || hi < lo {
		return []string{spec}
	}

	prefix, suffix := spec[:open], spec[end+1:]
	expanded := make([]string, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		// A second range in the suffix expands recursively.
		for _, tail := range ExpandBraces(suffix) {
			expanded = append(expanded, prefix+strconv.Itoa(i)+tail)
		}
	}
	return expanded
}

// ResolveHosts turns raw CLI host specs into resolved host identities:
// cluster tags are expanded, brace ranges unfolded, then each spec parsed.
func ResolveHosts(specs []string, clusters []Cluster, defaultUser string, defaultPort int) ([]Host, error) {
	var hosts []Host
	for _, spec := range ResolveClusterTags(specs, clusters) {
		for _, expanded := range ExpandBraces(spec) {
			h, err := ParseHost(expanded, defaultUser, defaultPort)
			if err != nil {
				return nil, err
			}
			hosts = append(hosts, h)
		}
	}
	return hosts, nil
}
