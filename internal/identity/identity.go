package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalid is returned for any string that does not parse as a SEMP address.
var ErrInvalid = errors.New("invalid identity")

// Identity is a parsed "@name.host" address. The name is local to the host;
// the host names the federation member that owns the record.
type Identity struct {
	Name string
	Host string
}

var (
	namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]*$`)
	// DNS hostname: dot-separated labels of 1-63 alphanumeric characters with
	// internal hyphens.
	hostPattern = regexp.MustCompile(`^[0-9A-Za-z](?:[0-9A-Za-z-]{0,61}[0-9A-Za-z])?(?:\.[0-9A-Za-z](?:[0-9A-Za-z-]{0,61}[0-9A-Za-z])?)*$`)
)

// Resolve parses and validates an "@name.host" address. It performs no
// network or storage access.
func Resolve(text string) (Identity, error) {
	if !strings.HasPrefix(text, "@") {
		return Identity{}, fmt.Errorf("%w: missing leading @", ErrInvalid)
	}

	name, host, ok := strings.Cut(text[1:], ".")
	if !ok || host == "" {
		return Identity{}, fmt.Errorf("%w: missing host part", ErrInvalid)
	}

	if !namePattern.MatchString(name) {
		return Identity{}, fmt.Errorf("%w: bad name %q", ErrInvalid, name)
	}
	if len(host) > 255 || !hostPattern.MatchString(host) {
		return Identity{}, fmt.Errorf("%w: bad host %q", ErrInvalid, host)
	}

	return Identity{Name: name, Host: host}, nil
}

func (id Identity) String() string {
	return "@" + id.Name + "." + id.Host
}
