package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "single block",
			in:   "Here you go:\n```python\nprint(df.head())\n```\nDone.",
			want: "print(df.head())",
		},
		{
			name: "multiline interior",
			in:   "```python\nx = 1\n\ny = 2\nprint(x + y)\n```",
			want: "x = 1\n\ny = 2\nprint(x + y)",
		},
		{
			name: "first of two",
			in:   "```python\na = 1\n```\ntext\n```python\nb = 2\n```",
			want: "a = 1",
		},
		{
			name: "no block",
			in:   "I cannot help with that.",
			want: "",
		},
		{
			name: "other language only",
			in:   "```sql\nselect 1\n```",
			want: "",
		},
		{
			name: "crlf",
			in:   "```python\r\nprint(1)\r\n```",
			want: "print(1)",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Code(tc.in))
		})
	}
}

func TestCodeIsPure(t *testing.T) {
	in := "```python\nprint(1)\n```"
	assert.Equal(t, Code(in), Code(in))
}

func TestBlocks(t *testing.T) {
	got := Blocks("```Python\nx = 1\n```\n```\nplain\n```")
	assert.Equal(t, []Block{{Lang: "python", Body: "x = 1"}, {Lang: "", Body: "plain"}}, got)
}
