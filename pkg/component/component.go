// Package component holds chat/text components as an opaque holder
// over the wire encodings Minecraft has used historically: raw
// legacy-formatted strings, JSON text components and, from 1.20.3 on,
// binary NBT. The holder only renders JSON text; NBT bytes received
// off the wire are carried as-is and are not converted to or from
// JSON, and no NBT encoding is produced. Per spec §4.2/§9 the
// core only ever needs to *compose* simple components (kick reasons,
// queue messages) and to *inspect* one thing: whether a kick reason's
// flattened text contains a configured banned-reason substring
// (§4.6.1). Everything else is carried as opaque bytes.
package component

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Style carries the subset of text styling the core ever sets itself
// (kick/queue messages); structural fidelity for arbitrary upstream
// components is preserved by round-tripping their original encoding
// rather than re-deriving it from Style.
type Style struct {
	Color         string `json:"color,omitempty"`
	Bold          bool   `json:"bold,omitempty"`
	Italic        bool   `json:"italic,omitempty"`
	Obfuscated    bool   `json:"obfuscated,omitempty"`
	Strikethrough bool   `json:"strikethrough,omitempty"`
	Underlined    bool   `json:"underlined,omitempty"`
}

// Component is satisfied by Text and Translatable.
type Component interface {
	component()
}

// Text is a literal text component, the only kind this proxy composes
// for its own messages (kicks, queue action bars, alerts).
type Text struct {
	Content string      `json:"text"`
	S       Style       `json:"-"`
	Extra   []Component `json:"extra,omitempty"`
}

func (*Text) component() {}

// Translatable is a translation-key component, used for the
// "multiplayer.disconnect.duplicate_login" family of localized
// messages the spec names explicitly.
type Translatable struct {
	Key  string      `json:"translate"`
	With []Component `json:"with,omitempty"`
}

func (*Translatable) component() {}

// Holder is the opaque, lazily-converted carrier described in spec §9.
// It stores whichever encoding it was constructed or received in and
// only pays the conversion cost when a caller asks for a different
// one.
type Holder struct {
	raw    []byte // original bytes as received, in whichever encoding
	isNBT  bool   // true if raw is binary NBT rather than JSON text
	parsed Component
}

// FromComponent wraps a composed Component, deferring encoding until
// MarshalJSON is called.
func FromComponent(c Component) *Holder { return &Holder{parsed: c} }

// FromJSON wraps raw JSON bytes received off the wire without parsing
// them eagerly.
func FromJSON(raw []byte) *Holder { return &Holder{raw: raw} }

// FromNBT wraps raw binary-NBT bytes received off the wire (1.20.3+).
func FromNBT(raw []byte) *Holder { return &Holder{raw: raw, isNBT: true} }

// Parsed returns the originally composed Component if h was built via
// FromComponent, or nil if h instead wraps raw wire bytes.
func (h *Holder) Parsed() Component { return h.parsed }

// MarshalJSON renders the component as the JSON text-component
// encoding used by pre-1.20.3 clients and by 1.20.3+ clients in
// contexts that still take JSON (e.g. STATUS ping descriptions).
func (h *Holder) MarshalJSON() ([]byte, error) {
	if h.raw != nil && !h.isNBT {
		return h.raw, nil
	}
	c := h.parsed
	if c == nil {
		var err error
		c, err = h.parse()
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(c)
}

// parse decodes raw bytes (JSON only - NBT structural decoding is out
// of scope per spec §1) into a Component tree good enough for the
// flattening walk PlainText performs.
func (h *Holder) parse() (Component, error) {
	if h.isNBT {
		// Binary NBT structural decode is explicitly out of scope; we
		// only need flattened text for the banned-reason guard, which
		// Flatten handles directly by falling back to h.raw as a string.
		return &Text{Content: string(h.raw)}, nil
	}
	var t Text
	if err := json.Unmarshal(h.raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// PlainText flattens the component tree to a single string by
// concatenating every Text.Content and Translatable key,
// recursing into Extra children - the walk spec §4.6.1 requires for
// the banned-reason guard.
func PlainText(c Component) string {
	var b strings.Builder
	writePlain(&b, c)
	return b.String()
}

func writePlain(b *strings.Builder, c Component) {
	switch v := c.(type) {
	case *Text:
		b.WriteString(v.Content)
		for _, e := range v.Extra {
			writePlain(b, e)
		}
	case *Translatable:
		b.WriteString(v.Key)
		for _, w := range v.With {
			writePlain(b, w)
		}
	}
}

// Flatten returns h's plain text, regardless of which encoding it was
// constructed or received in; used anywhere a kick/queue reason needs
// to be shown or logged as a single string rather than round-tripped.
func Flatten(h *Holder) string {
	if h == nil {
		return ""
	}
	if h.parsed != nil {
		return PlainText(h.parsed)
	}
	if !h.isNBT {
		var t Text
		if json.Unmarshal(h.raw, &t) == nil {
			return PlainText(&t)
		}
	}
	return string(h.raw)
}

// ContainsBannedReason reports whether h's flattened text contains any
// of the configured substrings. Matching is byte-wise and
// case-sensitive, preserving the source behavior called out as an open
// question in spec §9 ("preserve source behavior: byte-wise contains").
func ContainsBannedReason(h *Holder, bannedReasons []string) bool {
	if h == nil {
		return false
	}
	plain := Flatten(h)
	for _, reason := range bannedReasons {
		if reason != "" && bytes.Contains([]byte(plain), []byte(reason)) {
			return true
		}
	}
	return false
}
