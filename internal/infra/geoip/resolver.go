package geoip

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when the resolver is not initialized.
var ErrUnavailable = errors.New("geoip resolver unavailable")

// TimezoneResolver resolves IANA timezone names from IP addresses. It is
// used to default a job's timezone from the creator's address when the
// request does not carry one.
type TimezoneResolver interface {
	Timezone(ip string) (string, error)
}

// Resolver provides timezone lookups backed by a MaxMind GeoIP2 City database.
type Resolver struct {
	reader *geoip2.Reader
}

// NewResolver opens the GeoIP database at the given path. When the path is empty, nil is returned.
func NewResolver(path string) (TimezoneResolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return &Resolver{reader: reader}, nil
}

// Timezone returns the IANA timezone name for the provided IP, or "" when
// the database has no location for it.
func (r *Resolver) Timezone(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	record, err := r.reader.City(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup city: %w", err)
	}
	if record == nil {
		return "", nil
	}
	return record.Location.TimeZone, nil
}

// Close closes the underlying database reader.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
