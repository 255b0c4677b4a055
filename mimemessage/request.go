package mimemessage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AddressList is a list of addresses which unmarshals from either a JSON string or an array of strings
type AddressList []string

// UnmarshalJSON implements json.Unmarshaler
func (a *AddressList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			*a = nil
			return nil
		}
		*a = AddressList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("address list must be a string or an array of strings: %w", err)
	}

	*a = many
	return nil
}

// Attachment is a file attached to a message. Content is already base64 encoded.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Content  string `json:"base64"`
}

// InlinePart is a file referenced from the html body by cid. Content is already base64 encoded.
type InlinePart struct {
	ContentID string `json:"cid"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	Content   string `json:"base64"`
}

// Request is one outbound message. Build never modifies it.
type Request struct {
	To          AddressList  `json:"to"`
	Cc          []string     `json:"cc,omitempty"`
	Bcc         []string     `json:"bcc,omitempty"`
	Subject     string       `json:"subject"`
	BodyText    string       `json:"bodyText,omitempty"`
	BodyHTML    string       `json:"bodyHtml,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Inline      []InlinePart `json:"inline,omitempty"`
}

// Recipients returns the non blank To addresses, trimmed
func (r Request) Recipients() []string {
	return compact(r.To)
}

func compact(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}
