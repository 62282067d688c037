package storage

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/mama-core/mama/internal/model"
)

// newEntityID builds a human-legible "<type>_<topic?>_<ms>_<rand>" id,
// generalizing the teacher's uuid.New() call at insert time (spec §4.2).
func newEntityID(t model.EntityType, topic string, createdAtMs int64) string {
	slug := slugify(topic)
	if slug == "" {
		return fmt.Sprintf("%s_%d_%s", t, createdAtMs, randSuffix())
	}
	return fmt.Sprintf("%s_%s_%d_%s", t, slug, createdAtMs, randSuffix())
}

// slugify lowercases topic and replaces runs of non-alphanumerics with a
// single underscore, trimming at 32 characters to keep ids short.
func slugify(topic string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range strings.ToLower(topic) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	s := strings.TrimRight(b.String(), "_")
	if len(s) > 32 {
		s = strings.TrimRight(s[:32], "_")
	}
	return s
}

// newRecordID builds a "<prefix>_<ms>_<rand>" id for flat, non-entity
// records (audit entries, restart metrics) that have no topic to slug.
func newRecordID(prefix string, createdAtMs int64) string {
	return fmt.Sprintf("%s_%d_%s", prefix, createdAtMs, randSuffix())
}

// randSuffix returns a short, lowercase, base32-encoded random suffix used
// to keep generated IDs collision-resistant without a coordinating sequence,
// generalizing the teacher's uuid.New() call at insert time to MAMA's
// human-legible "<type>_<topic?>_<ms>_<rand>" ID shape (spec §4.2).
func randSuffix() string {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand.Read on the standard reader does not fail in practice;
		// degrade to an all-zero suffix rather than panic.
		return "00000000"
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b[:]))
}
