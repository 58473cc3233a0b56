package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

// ContentHash fingerprints the fields that repeat verbatim across re-scrapes
// of the same posting. Fields are length-prefixed so ("ab","c") and ("a","bc")
// differ. Deadline, pay and contact are excluded on purpose.
func ContentHash(c entity.ExtractionCandidate) string {
	h := sha256.New()
	for _, f := range []string{c.Title, c.Description, c.Company, c.Location} {
		f = strings.TrimSpace(f)
		var n [8]byte
		l := uint64(len(f))
		for i := 7; i >= 0; i-- {
			n[i] = byte(l)
			l >>= 8
		}
		h.Write(n[:])
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}
