package ledger

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kasirinaja/stockledger/internal/store"
)

func EncodeCursor(pos store.LedgerPosition) string {
	raw := fmt.Sprintf("%d|%s", pos.CreatedAt.UTC().UnixNano(), pos.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(cursor string) (*store.LedgerPosition, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, store.Invalid("cursor", "malformed")
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, store.Invalid("cursor", "malformed")
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, store.Invalid("cursor", "malformed")
	}
	return &store.LedgerPosition{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}
