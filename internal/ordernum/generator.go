package ordernum

import (
	"crypto/rand"
	"fmt"
	"time"
)

// alphabet avoids visually ambiguous characters (0/O, 1/I/L).
const alphabet = "23456789ABCDEFGHJKMNPQRSTVWXYZ"

const suffixLen = 6

// Generator produces human-readable order numbers of the form
// ORD-20260901-7KQ3WF. The date prefix keeps numbers roughly sortable,
// the random suffix keeps them collision-resistant. Uniqueness is still
// enforced by the storage layer; callers regenerate on a duplicate.
type Generator struct {
	now func() time.Time
}

func New() *Generator {
	return &Generator{now: time.Now}
}

func (g *Generator) Next() string {
	buf := make([]byte, suffixLen)
	rand.Read(buf)
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", g.now().UTC().Format("20060102"), buf)
}
