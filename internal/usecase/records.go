package usecase

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"mentorgraph/internal/ledger"
)

var walletPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// normalizeWallet lowercases and validates a wallet address.
func normalizeWallet(w string) (string, bool) {
	w = strings.ToLower(strings.TrimSpace(w))
	return w, walletPattern.MatchString(w)
}

// normalizeSkill returns the query form of a skill and the trimmed label.
func normalizeSkill(skill string) (key, label string) {
	label = strings.Join(strings.Fields(skill), " ")
	return strings.ToLower(label), label
}

// payload wraps an entity's JSON payload for tolerant field access. Older
// records drift in type (numbers stored as strings, lists as CSV), so fields are
// read leniently instead of through a strict struct decode.
type payload struct {
	raw []byte
}

// decodePayload returns the entity's payload, or false when it is not JSON.
func decodePayload(e ledger.Entity) (payload, bool) {
	if len(e.Payload) == 0 || !gjson.ValidBytes(e.Payload) {
		return payload{}, false
	}
	return payload{raw: e.Payload}, true
}

func (p payload) text(path string) string {
	return gjson.GetBytes(p.raw, path).String()
}

func (p payload) number(path string) int {
	return int(gjson.GetBytes(p.raw, path).Int())
}

func (p payload) timestamp(path string) time.Time {
	t, err := time.Parse(time.RFC3339, p.text(path))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// list reads a list, accepting a JSON array or a comma-separated string.
func (p payload) list(path string) []string {
	r := gjson.GetBytes(p.raw, path)
	var out []string
	switch {
	case r.IsArray():
		for _, v := range r.Array() {
			if s := strings.TrimSpace(v.String()); s != "" {
				out = append(out, s)
			}
		}
	case r.Type == gjson.String:
		for _, s := range strings.Split(r.String(), ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func (p payload) dict(path string) map[string]string {
	r := gjson.GetBytes(p.raw, path)
	if !r.IsObject() {
		return nil
	}
	out := make(map[string]string)
	r.ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.String()
		return true
	})
	return out
}

// skipMalformed logs an entity whose payload could not be decoded.
func (s *Service) skipMalformed(ctx context.Context, e ledger.Entity) {
	s.logger.WarnContext(ctx, "skipping entity with malformed payload", "type", e.Type(), "entityKey", e.Key)
}

// txHashIndex maps the foreign key of each txhash entity to its hash. When
// several companions point at the same entity the earliest wins.
func txHashIndex(entities []ledger.Entity, fkAttr string) map[string]string {
	out := make(map[string]string, len(entities))
	for _, e := range entities {
		fk := e.Attr(fkAttr)
		if fk == "" {
			continue
		}
		if _, seen := out[fk]; seen {
			continue
		}
		p, ok := decodePayload(e)
		if !ok {
			continue
		}
		if h := p.text("txHash"); h != "" {
			out[fk] = h
		}
	}
	return out
}

// newestFirst sorts by creation time descending, then key.
func newestFirst[T any](items []T, createdAt func(T) time.Time, key func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := createdAt(items[i]), createdAt(items[j])
		if ci.Equal(cj) {
			return key(items[i]) < key(items[j])
		}
		return ci.After(cj)
	})
}
