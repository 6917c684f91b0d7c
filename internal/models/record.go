package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Field names used by the listing step and the downstream publisher.
const (
	FieldName        = "product_name"
	FieldPrice       = "product_price"
	FieldSourceRef   = "product_url"
	FieldDetail      = "product_details"
	FieldPublished   = "published"
	FieldMediaPrefix = "image_url_"
)

// Record is one harvested entity. Field insertion order is part of the
// persisted form and survives a load/save round trip.
type Record struct {
	fields *orderedmap.OrderedMap[string, any]
}

// NewRecord creates an empty record
func NewRecord() *Record {
	return &Record{fields: orderedmap.New[string, any]()}
}

// NewListingRecord creates the record shape produced by a listing page
func NewListingRecord(name, price, sourceRef string) *Record {
	r := NewRecord()
	r.Set(FieldName, name)
	r.Set(FieldPrice, price)
	r.Set(FieldSourceRef, sourceRef)
	return r
}

// Get returns the raw value stored under key
func (r *Record) Get(key string) (any, bool) {
	return r.fields.Get(key)
}

// Set inserts or replaces a field. New keys are appended at the end.
func (r *Record) Set(key string, value any) {
	r.fields.Set(key, value)
}

// Keys returns field names in insertion order
func (r *Record) Keys() []string {
	keys := make([]string, 0, r.fields.Len())
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of fields
func (r *Record) Len() int {
	return r.fields.Len()
}

func (r *Record) stringField(key string) string {
	v, ok := r.fields.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// SourceRef returns the record identity (its product URL)
func (r *Record) SourceRef() string {
	return strings.TrimSpace(r.stringField(FieldSourceRef))
}

// Name returns the display name, falling back to a placeholder
func (r *Record) Name() string {
	if name := strings.TrimSpace(r.stringField(FieldName)); name != "" {
		return name
	}
	return "Unknown Product"
}

// DetailText returns the stored detail block
func (r *Record) DetailText() string {
	return r.stringField(FieldDetail)
}

// HasDetail reports whether the detail block is non-blank
func (r *Record) HasDetail() bool {
	return strings.TrimSpace(r.DetailText()) != ""
}

// Published reports the downstream publisher flag
func (r *Record) Published() bool {
	v, ok := r.fields.Get(FieldPublished)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// Media returns the non-empty media references ordered by their index suffix
func (r *Record) Media() []string {
	type indexed struct {
		index int
		url   string
	}
	var found []indexed
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		index, ok := MediaIndex(pair.Key)
		if !ok {
			continue
		}
		s, ok := pair.Value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		found = append(found, indexed{index: index, url: s})
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].index < found[j].index })

	media := make([]string, 0, len(found))
	for _, f := range found {
		media = append(media, f.url)
	}
	return media
}

// IsComplete is both the skip predicate and the keep predicate: a non-blank
// detail block and at least one media reference.
func (r *Record) IsComplete() bool {
	return r.HasDetail() && len(r.Media()) >= 1
}

// MediaIndex parses the 1-based index out of an image_url_N key
func MediaIndex(key string) (int, bool) {
	if !strings.HasPrefix(key, FieldMediaPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(key, FieldMediaPrefix))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// MediaKey builds the field name for the 1-based media position
func MediaKey(index int) string {
	return fmt.Sprintf("%s%d", FieldMediaPrefix, index)
}

// Merge returns a copy of the record carrying detail and media. Existing
// fields keep their relative order; previous detail/media fields are dropped
// and the new ones are inserted right after the source reference, detail
// first. At most maxMedia references are written.
func (r *Record) Merge(detail string, media []string, maxMedia int) *Record {
	if maxMedia > 0 && len(media) > maxMedia {
		media = media[:maxMedia]
	}

	merged := NewRecord()
	inserted := false
	insert := func() {
		merged.Set(FieldDetail, detail)
		for i, url := range media {
			merged.Set(MediaKey(i+1), url)
		}
		inserted = true
	}

	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == FieldDetail {
			continue
		}
		if _, isMedia := MediaIndex(pair.Key); isMedia {
			continue
		}
		merged.Set(pair.Key, pair.Value)
		if pair.Key == FieldSourceRef {
			insert()
		}
	}
	if !inserted {
		insert()
	}
	return merged
}

// Clone returns a shallow copy preserving field order
func (r *Record) Clone() *Record {
	c := NewRecord()
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		c.Set(pair.Key, pair.Value)
	}
	return c
}

// MarshalJSON writes the fields as a JSON object in insertion order. Markup in
// values is written as-is rather than \u-escaped.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for pair := r.fields.Oldest(); pair != nil; pair = pair.Next() {
		if pair != r.fields.Oldest() {
			buf.WriteByte(',')
		}
		if err := enc.Encode(pair.Key); err != nil {
			return nil, err
		}
		trimNewline(&buf)
		buf.WriteByte(':')
		if err := enc.Encode(pair.Value); err != nil {
			return nil, fmt.Errorf("field %s: %w", pair.Key, err)
		}
		trimNewline(&buf)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// trimNewline drops the newline json.Encoder appends after each value
func trimNewline(buf *bytes.Buffer) {
	if n := buf.Len(); n > 0 && buf.Bytes()[n-1] == '\n' {
		buf.Truncate(n - 1)
	}
}

// UnmarshalJSON reads a JSON object keeping its key order
func (r *Record) UnmarshalJSON(data []byte) error {
	raw := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, raw); err != nil {
		return err
	}

	// numbers stay json.Number so large ids are written back unchanged
	fields := orderedmap.New[string, any](orderedmap.WithCapacity[string, any](raw.Len()))
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		dec := json.NewDecoder(bytes.NewReader(pair.Value))
		dec.UseNumber()
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("field %s: %w", pair.Key, err)
		}
		fields.Set(pair.Key, value)
	}
	r.fields = fields
	return nil
}
