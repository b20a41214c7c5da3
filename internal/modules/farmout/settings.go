// README: Automation settings parsing: interval validation, recipient resolution, persisted record codec.
package farmout

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"relialimo/internal/modules/directory"
)

// DirectoryLookup resolves a recipient identifier; nil means no match.
type DirectoryLookup interface {
	Lookup(ctx context.Context, identifier string) *directory.Entry
}

// NormalizeInterval returns v as whole minutes when it is an integer in
// [MinIntervalMinutes, MaxIntervalMinutes]; anything else yields the default.
func NormalizeInterval(v any) int {
	n, ok := parseInterval(v)
	if !ok {
		return DefaultIntervalMinutes
	}
	return n
}

// ApplyIntervalEdit applies a dispatcher edit; invalid input keeps prev.
func ApplyIntervalEdit(prev int, raw string) int {
	if n, ok := parseInterval(raw); ok {
		return n
	}
	return NormalizeInterval(prev)
}

func parseInterval(v any) (int, bool) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, false
		}
		n = int64(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			f, ferr := x.Float64()
			if ferr != nil || f != math.Trunc(f) {
				return 0, false
			}
			i = int64(f)
		}
		n = i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	if n < MinIntervalMinutes || n > MaxIntervalMinutes {
		return 0, false
	}
	return int(n), true
}

// ParseRecipients splits raw on newlines and commas into "identifier|phone"
// entries and resolves each identifier against lookup (which may be nil).
// Order is preserved.
func ParseRecipients(ctx context.Context, raw string, lookup DirectoryLookup) []Recipient {
	out := []Recipient{}
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == '\r' || r == ',' })
	for _, field := range fields {
		ident, phone, _ := strings.Cut(field, "|")
		ident = strings.TrimSpace(ident)
		phone = strings.TrimSpace(phone)
		if ident == "" {
			ident = phone
		}
		if ident == "" {
			continue
		}
		out = append(out, resolveRecipient(ctx, ident, phone, lookup))
	}
	return out
}

func resolveRecipient(ctx context.Context, ident, phone string, lookup DirectoryLookup) Recipient {
	rec := Recipient{Identifier: ident}
	var entry *directory.Entry
	if lookup != nil {
		entry = lookup.Lookup(ctx, ident)
	}
	if entry == nil {
		switch {
		case strings.Contains(ident, "@"):
			rec.Email = ident
		case phone == "":
			rec.Phone = ident
		}
		if phone != "" {
			rec.Phone = phone
		}
		return rec
	}

	rec.Email = entry.Email
	if rec.Email == "" && strings.Contains(ident, "@") {
		rec.Email = ident
	}
	rec.Phone = entry.Phone
	if phone != "" {
		rec.Phone = phone
	}
	if entry.ID != "" {
		id := entry.ID
		rec.UserID = &id
	}
	return rec
}

// settingsRecord is the persisted shape; the interval is decoded loosely so
// malformed values can be replaced by the default.
type settingsRecord struct {
	DispatchIntervalMinutes any         `json:"dispatchIntervalMinutes"`
	RecipientsRaw           string      `json:"recipientsRaw"`
	Recipients              []Recipient `json:"recipients"`
}

func encodeSettings(s Settings) ([]byte, error) {
	return json.Marshal(settingsRecord{
		DispatchIntervalMinutes: s.DispatchIntervalMinutes,
		RecipientsRaw:           s.RecipientsRaw,
		Recipients:              s.Recipients,
	})
}

// decodeSettings never fails: an empty or malformed record yields defaults.
func decodeSettings(data []byte) (Settings, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		return DefaultSettings(), false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec settingsRecord
	if err := dec.Decode(&rec); err != nil {
		return DefaultSettings(), false
	}
	s := Settings{
		DispatchIntervalMinutes: NormalizeInterval(rec.DispatchIntervalMinutes),
		RecipientsRaw:           rec.RecipientsRaw,
		Recipients:              make([]Recipient, 0, len(rec.Recipients)),
	}
	for _, r := range rec.Recipients {
		r.Identifier = strings.TrimSpace(r.Identifier)
		if r.Identifier == "" {
			continue
		}
		s.Recipients = append(s.Recipients, r)
	}
	return s, true
}
