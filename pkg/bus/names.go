package bus

import (
	"fmt"
	"strings"
)

// ValidateNodeName checks a base node name: [A-Za-z_][A-Za-z0-9_]*.
func ValidateNodeName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty node name", ErrInvalidName)
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("%w: node name %q", ErrInvalidName, name)
		}
	}
	return nil
}

// NormalizeNamespace returns ns in absolute form ("/" or "/a/b").
func NormalizeNamespace(ns string) (string, error) {
	ns = strings.TrimSuffix(ns, "/")
	if ns == "" {
		return "/", nil
	}
	if ns[0] != '/' {
		ns = "/" + ns
	}
	for _, seg := range strings.Split(ns[1:], "/") {
		if err := validateSegment(seg); err != nil {
			return "", fmt.Errorf("%w: namespace %q", ErrInvalidName, ns)
		}
	}
	return ns, nil
}

// FullyQualified joins a normalized namespace and a node name.
func FullyQualified(namespace, node string) string {
	if namespace == "/" {
		return "/" + node
	}
	return namespace + "/" + node
}

// ResolveName expands a topic or service name relative to a node:
//
//	/abs/name   stays as is
//	~/private   becomes <namespace>/<node>/private
//	relative    becomes <namespace>/relative
func ResolveName(namespace, node, name string) (string, error) {
	var resolved string
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty name", ErrInvalidName)
	case strings.HasPrefix(name, "/"):
		resolved = name
	case name == "~" || strings.HasPrefix(name, "~/"):
		resolved = FullyQualified(namespace, node) + strings.TrimPrefix(name, "~")
	default:
		if namespace == "/" {
			resolved = "/" + name
		} else {
			resolved = namespace + "/" + name
		}
	}

	resolved = strings.TrimSuffix(resolved, "/")
	for _, seg := range strings.Split(strings.TrimPrefix(resolved, "/"), "/") {
		if err := validateSegment(seg); err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return resolved, nil
}

func validateSegment(seg string) error {
	if seg == "" {
		return ErrInvalidName
	}
	for _, r := range seg {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ErrInvalidName
		}
	}
	return nil
}
