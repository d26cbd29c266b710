package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// DomainStay separates stay fingerprints from any other hash in the system.
const DomainStay = "pm/stay/v1"

// Fingerprint returns a stable content hash of every observable field of s.
//
// Two stays have the same fingerprint iff all their fields are equal after
// NFC normalization of strings. Rollback checks compare fingerprints taken
// before a move and after its rollback.
func Fingerprint(s Stay) (string, error) {
	obj := map[string]any{
		"id":          s.ID,
		"property_id": s.PropertyID,
		"room_id":     s.RoomID,
		"guest_id":    s.GuestID,
		"guest_name":  s.GuestName,
		"check_in":    s.CheckIn.String(),
		"check_out":   s.CheckOut.String(),
		"status":      string(s.Status),
		"adults":      int64(s.Adults),
		"children":    int64(s.Children),
		"total":       int64(s.Total),
		"notes":       s.Notes,
		"version":     s.Version,
		"updated_at":  s.UpdatedAt.UnixNano(),
	}
	if s.UpdatedAt.IsZero() {
		obj["updated_at"] = int64(0)
	}

	canonical, err := marshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("fingerprint stay %s: %w", s.ID, err)
	}
	return hashWithDomain(DomainStay, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
func MustFingerprint(s Stay) string {
	fp, err := Fingerprint(s)
	if err != nil {
		panic(err)
	}
	return fp
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// marshalCanonical encodes a flat object with sorted keys, NFC-normalized
// strings and no HTML escaping. Only strings and int64 are accepted.
func marshalCanonical(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalCanonicalString(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')

		switch v := obj[k].(type) {
		case string:
			vb, err := marshalCanonicalString(v)
			if err != nil {
				return nil, fmt.Errorf("value for key %q: %w", k, err)
			}
			buf.Write(vb)
		case int64:
			buf.WriteString(strconv.FormatInt(v, 10))
		default:
			return nil, fmt.Errorf("unsupported type for key %q: %T", k, v)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
