package xid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a time-ordered identifier so that IDs minted in the same
// instant still sort in creation order.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return fmt.Sprintf("%s_%s", prefix, id.String())
}

func DocumentNumber(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.UTC().Format("20060102"), seq)
}
