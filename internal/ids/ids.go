// Package ids generates the identifier formats used across kessa's
// journal, session, and value records.
package ids

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// randHex returns n bytes worth of hex-encoded randomness, drawn from
// a UUIDv4's entropy rather than a second RNG.
func randHex(n int) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n*2 > len(raw) {
		n = len(raw) / 2
	}
	return raw[:n*2]
}

// GHAP generates a "ghap_{yyyymmdd}_{hhmmss}_{rand}" identifier.
func GHAP(now time.Time) string {
	return fmt.Sprintf("ghap_%s_%s_%s", now.Format("20060102"), now.Format("150405"), randHex(3))
}

// Session generates a "session_{yyyymmdd}_{hhmmss}_{rand}" identifier.
func Session(now time.Time) string {
	return fmt.Sprintf("session_%s_%s_%s", now.Format("20060102"), now.Format("150405"), randHex(3))
}

// Value generates a "value_{axis}_{label}_{rand8}" identifier.
func Value(axis string, label int) string {
	return fmt.Sprintf("value_%s_%d_%s", axis, label, randHex(4))
}

// Memory generates a random UUID identifier.
func Memory() string {
	return uuid.NewString()
}

// ClusterID formats a cluster identifier as "{axis}_{label}".
func ClusterID(axis string, label int) string {
	return fmt.Sprintf("%s_%d", axis, label)
}
