// Package mimemessage turns a Request into an RFC 2822 document and encodes it for the Gmail
// raw message field.
package mimemessage

import (
	"encoding/base64"
	"mime"
	"strings"

	"github.com/google/uuid"
)

const crlf = "\r\n"

// Field is a single header field
type Field struct {
	Key   string
	Value string
}

// Node is a node of the MIME tree. It is either a *Part or a *Multipart.
type Node interface {
	node()
}

// Part is a leaf holding its header fields and body
type Part struct {
	Header []Field
	Body   string
}

// Multipart is a multipart/<Subtype> node. Children are written in order.
type Multipart struct {
	Subtype  string
	Boundary string
	Parts    []Node
}

func (*Part) node()      {}
func (*Multipart) node() {}

// Message is a complete document: the top level header fields followed by the root node
type Message struct {
	Header []Field
	Root   Node
}

// Structure is the top level layout chosen for a request
type Structure int

// Structures, in the order they are considered
const (
	Mixed Structure = iota
	Alternative
	HTMLOnly
	PlainOnly
)

func (s Structure) String() string {
	switch s {
	case Mixed:
		return "multipart/mixed"
	case Alternative:
		return "multipart/alternative"
	case HTMLOnly:
		return "text/html"
	default:
		return "text/plain"
	}
}

// policy is checked top to bottom and the first matching rule wins. The last rule always matches.
var policy = []struct {
	structure Structure
	matches   func(r Request) bool
}{
	{Mixed, func(r Request) bool { return len(r.Attachments) > 0 || len(r.Inline) > 0 }},
	{Alternative, func(r Request) bool { return r.BodyText != "" && r.BodyHTML != "" }},
	{HTMLOnly, func(r Request) bool { return r.BodyHTML != "" }},
	{PlainOnly, func(Request) bool { return true }},
}

// Choose returns the structure a request will be built with
func Choose(r Request) Structure {
	for _, rule := range policy {
		if rule.matches(r) {
			return rule.structure
		}
	}
	return PlainOnly
}

// NewSeed returns a random seed for Build
func NewSeed() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// Build lays out r as a MIME tree sent from the given address. Boundaries are derived from seed
// so the same request and seed always produce the same tree.
func Build(r Request, from string, seed string) *Message {
	m := &Message{}
	m.add("From", from)
	m.add("To", strings.Join(r.Recipients(), ", "))

	if cc := compact(r.Cc); len(cc) > 0 {
		m.add("Cc", strings.Join(cc, ", "))
	}
	if bcc := compact(r.Bcc); len(bcc) > 0 {
		m.add("Bcc", strings.Join(bcc, ", "))
	}

	m.add("Subject", mime.BEncoding.Encode("UTF-8", sanitizeHeader(r.Subject)))
	m.add("MIME-Version", "1.0")

	boundary := "boundary_" + seed

	switch Choose(r) {
	case Mixed:
		mixed := &Multipart{Subtype: "mixed", Boundary: boundary}

		switch {
		case r.BodyText != "" && r.BodyHTML != "":
			mixed.Parts = append(mixed.Parts, alternative(r, "alt_"+boundary))
		case r.BodyHTML != "":
			mixed.Parts = append(mixed.Parts, textPart("text/html", r.BodyHTML))
		case r.BodyText != "":
			mixed.Parts = append(mixed.Parts, textPart("text/plain", r.BodyText))
		}

		for _, in := range r.Inline {
			p := filePart(in.MimeType, "inline", in.Filename, in.Content)
			p.Header = append(p.Header, Field{"Content-ID", "<" + sanitizeHeader(in.ContentID) + ">"})
			mixed.Parts = append(mixed.Parts, p)
		}

		for _, a := range r.Attachments {
			mixed.Parts = append(mixed.Parts, filePart(a.MimeType, "attachment", a.Filename, a.Content))
		}

		m.Root = mixed
	case Alternative:
		m.Root = alternative(r, boundary)
	case HTMLOnly:
		m.Root = textPart("text/html", r.BodyHTML)
	default:
		m.Root = textPart("text/plain", r.BodyText)
	}

	return m
}

func (m *Message) add(key string, value string) {
	m.Header = append(m.Header, Field{key, sanitizeHeader(value)})
}

func alternative(r Request, boundary string) *Multipart {
	return &Multipart{
		Subtype:  "alternative",
		Boundary: boundary,
		Parts: []Node{
			textPart("text/plain", r.BodyText),
			textPart("text/html", r.BodyHTML),
		},
	}
}

func textPart(mediaType string, body string) *Part {
	p := &Part{
		Header: []Field{{"Content-Type", mediaType + "; charset=UTF-8"}},
		Body:   normalizeBody(body),
	}

	if !isASCII(body) {
		p.Header = append(p.Header, Field{"Content-Transfer-Encoding", "8bit"})
	}

	return p
}

func filePart(mediaType string, disposition string, filename string, content string) *Part {
	mediaType = sanitizeHeader(mediaType)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	disp := disposition
	if filename = sanitizeHeader(filename); filename != "" {
		if formatted := mime.FormatMediaType(disposition, map[string]string{"filename": filename}); formatted != "" {
			disp = formatted
		}
	}

	return &Part{
		Header: []Field{
			{"Content-Type", mediaType},
			{"Content-Disposition", disp},
			{"Content-Transfer-Encoding", "base64"},
		},
		Body: normalizeBody(content),
	}
}

// Bytes serializes the message with CRLF line endings
func (m *Message) Bytes() []byte {
	var b strings.Builder

	for _, f := range m.Header {
		writeField(&b, f)
	}
	writeNode(&b, m.Root)

	return []byte(b.String())
}

// writeNode writes the header fields of n, a blank line, and then its body
func writeNode(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Part:
		for _, f := range n.Header {
			writeField(b, f)
		}
		b.WriteString(crlf)
		b.WriteString(n.Body)
		b.WriteString(crlf)
	case *Multipart:
		ct := mime.FormatMediaType("multipart/"+n.Subtype, map[string]string{"boundary": n.Boundary})
		writeField(b, Field{"Content-Type", ct})
		b.WriteString(crlf)

		for _, child := range n.Parts {
			b.WriteString("--" + n.Boundary + crlf)
			writeNode(b, child)
		}

		b.WriteString("--" + n.Boundary + "--" + crlf)
	}
}

// foldWidth is the line length address headers are folded at
const foldWidth = 78

func writeField(b *strings.Builder, f Field) {
	b.WriteString(f.Key)
	b.WriteString(": ")

	switch f.Key {
	case "From", "To", "Cc", "Bcc":
		writeAddressList(b, len(f.Key)+2, f.Value)
	default:
		b.WriteString(f.Value)
	}
	b.WriteString(crlf)
}

// writeAddressList writes a ", " separated list, starting a continuation line after a comma
// whenever the next address would push the line past foldWidth. Unfolding gives back value unchanged.
func writeAddressList(b *strings.Builder, col int, value string) {
	for i, addr := range strings.Split(value, ", ") {
		if i == 0 {
			b.WriteString(addr)
			col += len(addr)
			continue
		}

		b.WriteString(",")
		col++
		if col+1+len(addr) > foldWidth {
			b.WriteString(crlf)
			col = 0
		}
		b.WriteString(" ")
		b.WriteString(addr)
		col += 1 + len(addr)
	}
}

// sanitizeHeader drops CR, LF and NUL so a value can't start a new header line
func sanitizeHeader(v string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' || r == 0 {
			return -1
		}
		return r
	}, strings.TrimSpace(v))
}

// normalizeBody converts every line ending to CRLF and drops NUL bytes
func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\x00", "")
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	return strings.ReplaceAll(body, "\n", crlf)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// EncodeRaw encodes a document with the URL safe base64 alphabet and no padding
func EncodeRaw(doc []byte) string {
	return base64.RawURLEncoding.EncodeToString(doc)
}

// DecodeRaw reverses EncodeRaw
func DecodeRaw(raw string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(raw)
}

// Encode builds r with a fresh random seed and returns the encoded document
func Encode(r Request, from string) (string, error) {
	seed, err := NewSeed()
	if err != nil {
		return "", err
	}
	return EncodeRaw(Build(r, from, seed).Bytes()), nil
}
