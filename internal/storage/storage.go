// Package storage defines helpers shared by the object store backends.
package storage

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ParseExpiry extracts the expiration instant from a signed download URL's
// Expires query parameter (epoch seconds). The stored expiry is derived from
// the URL itself rather than recomputed, so the database can never claim a
// link is live longer than the signature allows.
func ParseExpiry(signedURL string) (time.Time, error) {
	u, err := url.Parse(signedURL)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse signed url: %w", err)
	}
	raw := u.Query().Get("Expires")
	if raw == "" {
		return time.Time{}, fmt.Errorf("signed url has no Expires parameter: %s", u.Path)
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse Expires value %q: %w", raw, err)
	}
	return time.Unix(epoch, 0).UTC(), nil
}
