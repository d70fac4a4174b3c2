package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTemplateRewritesQuestionMark(t *testing.T) {
	tpl, err := NewTemplate("SELECT * FROM employee_simple WHERE department = ?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM employee_simple WHERE department = $1", tpl.SQL())
}

func TestNewTemplateKeepsDollarPlaceholder(t *testing.T) {
	tpl, err := NewTemplate("SELECT id FROM orders WHERE region = $1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM orders WHERE region = $1", tpl.SQL())
}

func TestNewTemplateTrimsWhitespace(t *testing.T) {
	tpl, err := NewTemplate("\n  SELECT 1 WHERE true OR $1::int = 0\n")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 WHERE true OR $1::int = 0", tpl.SQL())
}

func TestNewTemplateRejectsBadPlaceholders(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", "   "},
		{"none", "SELECT * FROM employee_simple"},
		{"two marks", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"mark and dollar", "SELECT * FROM t WHERE a = ? AND b = $1"},
		{"second parameter", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"double digit", "SELECT * FROM t WHERE a = $12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTemplate(tt.text)
			assert.Error(t, err)
		})
	}
}

func TestNewTemplateIgnoresQuotedMarks(t *testing.T) {
	tpl, err := NewTemplate("SELECT * FROM t WHERE note = 'why?' AND id = ?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE note = 'why?' AND id = $1", tpl.SQL())

	_, err = NewTemplate("SELECT * FROM t WHERE note = 'why?'")
	assert.Error(t, err, "quoted mark alone must not satisfy the placeholder contract")
}
