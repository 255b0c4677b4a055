package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		in  string
		out string
	}{
		{
			in:  `<html><body><a href="https://example.com">Hello there</a></body></html>`,
			out: `Hello there`,
		},
		{
			in:  `<html><head><title>Jane</title><style>p{color:red}</style></head><body><h1>Jane Doe</h1><p>Software   engineer</p><script>var x = 1;</script><ul><li>Go</li><li>Rust</li></ul></body></html>`,
			out: `Jane Doe Software engineer Go Rust`,
		},
		{
			in:  `<p>Hi<br>there</p>`,
			out: `Hi there`,
		},
		{
			in:  ``,
			out: ``,
		},
	}

	for _, test := range tests {
		out, err := HTMLToText(test.in)
		require.NoError(t, err)
		assert.Equal(t, test.out, out)
	}
}
