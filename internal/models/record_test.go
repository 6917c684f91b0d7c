package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRecord(t *testing.T, raw string) *Record {
	t.Helper()
	var r Record
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return &r
}

func TestRecord_JSONPreservesFieldOrder(t *testing.T) {
	raw := `{"zeta":1,"product_name":"Phone","alpha":"a","product_url":"https://x/1","published":true}`
	r := mustRecord(t, raw)

	assert.Equal(t, []string{"zeta", "product_name", "alpha", "product_url", "published"}, r.Keys())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))

	again := mustRecord(t, string(out))
	assert.Equal(t, r.Keys(), again.Keys())
}

func TestRecord_JSONKeepsLargeIntegers(t *testing.T) {
	raw := `{"product_url":"u","id":9007199254740993,"rating":4.50,"published":false}`
	r := mustRecord(t, raw)

	id, ok := r.Get("id")
	require.True(t, ok)
	assert.Equal(t, json.Number("9007199254740993"), id)
	assert.False(t, r.Published())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, raw, string(out))
}

func TestRecord_Accessors(t *testing.T) {
	r := mustRecord(t, `{
		"product_name": "Phone",
		"product_url": " https://x/1 ",
		"image_url_2": "m2",
		"image_url_1": "m1",
		"image_url_3": "",
		"image_url_x": "ignored",
		"product_details": "<p>a</p>",
		"published": true
	}`)

	assert.Equal(t, "https://x/1", r.SourceRef())
	assert.Equal(t, "Phone", r.Name())
	assert.Equal(t, []string{"m1", "m2"}, r.Media())
	assert.True(t, r.HasDetail())
	assert.True(t, r.Published())
	assert.True(t, r.IsComplete())
}

func TestRecord_IsComplete(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"detail and media", `{"product_url":"u","product_details":"x","image_url_1":"m"}`, true},
		{"detail only", `{"product_url":"u","product_details":"x"}`, false},
		{"media only", `{"product_url":"u","image_url_1":"m"}`, false},
		{"blank detail", `{"product_url":"u","product_details":"   ","image_url_1":"m"}`, false},
		{"empty media value", `{"product_url":"u","product_details":"x","image_url_1":""}`, false},
		{"nothing", `{"product_url":"u"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mustRecord(t, tt.raw).IsComplete())
		})
	}
}

func TestRecord_MergeInsertsAfterSourceRef(t *testing.T) {
	r := mustRecord(t, `{"product_name":"P","product_price":"10","product_url":"u","published":false}`)

	merged := r.Merge("<p>d</p>", []string{"m1", "m2"}, DefaultMaxMedia)

	assert.Equal(t, []string{
		"product_name", "product_price", "product_url",
		"product_details", "image_url_1", "image_url_2",
		"published",
	}, merged.Keys())
	assert.Equal(t, "<p>d</p>", merged.DetailText())
	assert.Equal(t, []string{"m1", "m2"}, merged.Media())

	// original untouched
	assert.Equal(t, []string{"product_name", "product_price", "product_url", "published"}, r.Keys())
}

func TestRecord_MergeReplacesStaleFields(t *testing.T) {
	r := mustRecord(t, `{"image_url_1":"old","product_url":"u","product_details":"","extra":1,"image_url_2":"old2"}`)

	merged := r.Merge("new", []string{"n1"}, DefaultMaxMedia)

	assert.Equal(t, []string{"product_url", "product_details", "image_url_1", "extra"}, merged.Keys())
	assert.Equal(t, []string{"n1"}, merged.Media())
}

func TestRecord_MergeCapsMedia(t *testing.T) {
	r := mustRecord(t, `{"product_url":"u"}`)

	merged := r.Merge("d", []string{"1", "2", "3", "4", "5", "6", "7"}, DefaultMaxMedia)

	assert.Len(t, merged.Media(), DefaultMaxMedia)
	_, ok := merged.Get("image_url_6")
	assert.False(t, ok)
}

func TestRecord_MergeWithoutSourceRefAppends(t *testing.T) {
	r := mustRecord(t, `{"product_name":"P"}`)

	merged := r.Merge("d", []string{"m"}, DefaultMaxMedia)

	assert.Equal(t, []string{"product_name", "product_details", "image_url_1"}, merged.Keys())
}

func TestMediaIndex(t *testing.T) {
	n, ok := MediaIndex("image_url_12")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	for _, key := range []string{"image_url_", "image_url_0", "image_url_a", "product_url"} {
		_, ok := MediaIndex(key)
		assert.False(t, ok, key)
	}
	assert.Equal(t, "image_url_3", MediaKey(3))
}

func TestMediaSet(t *testing.T) {
	s := NewMediaSet(3, "a", "a", " ")
	assert.Equal(t, 1, s.Len())

	assert.True(t, s.Add("b"))
	assert.False(t, s.Add("b"))
	assert.True(t, s.Add("c"))
	assert.True(t, s.Full())
	assert.False(t, s.Add("d"))
	assert.Equal(t, []string{"a", "b", "c"}, s.URLs())

	assert.Equal(t, DefaultMaxMedia, NewMediaSet(0).Limit())
}

func TestRecord_MarshalKeepsMarkupUnescaped(t *testing.T) {
	r := NewListingRecord("Phone & Case", "1,299", "https://x/1?a=1&b=2")
	merged := r.Merge("<p>a</p>\n<p>b</p>", []string{"m1"}, DefaultMaxMedia)

	out, err := merged.MarshalJSON()
	require.NoError(t, err)

	assert.Equal(t,
		`{"product_name":"Phone & Case","product_price":"1,299","product_url":"https://x/1?a=1&b=2","product_details":"<p>a</p>\n<p>b</p>","image_url_1":"m1"}`,
		string(out))
}
