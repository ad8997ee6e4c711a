package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticket() map[string]any {
	return map[string]any{
		"id":         float64(42),
		"subject":    "Printer on fire",
		"priority":   float64(4),
		"status":     float64(2),
		"tags":       []any{"VIP", "hardware"},
		"updated_at": time.Now().Add(-72 * time.Hour).UTC().Format(time.RFC3339),
		"custom_fields": map[string]any{
			"region": "emea",
		},
	}
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name        string
		expression  string
		wantErr     bool
		errContains string
	}{
		{
			name:       "valid expression",
			expression: `hasTag("vip")`,
		},
		{
			name:        "empty expression",
			expression:  "  ",
			wantErr:     true,
			errContains: "empty expression",
		},
		{
			name:       "invalid syntax",
			expression: `hasTag("unclosed`,
			wantErr:    true,
		},
		{
			name:       "complex expression",
			expression: `priority >= 3 and daysSince(updated_at) < 30 and contains(subject, "printer")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expression)
			if tt.wantErr {
				require.Error(t, err)
				var compErr *CompilationError
				assert.True(t, errors.As(err, &compErr))
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expression, f.Expression())
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		expression string
		expected   bool
	}{
		{`priority >= 3`, true},
		{`priority > 4`, false},
		{`hasTag("vip")`, true},
		{`hasTag("software")`, false},
		{`contains(subject, "FIRE")`, true},
		{`startsWith(lower(subject), "printer")`, true},
		{`daysSince(updated_at) == 3`, true},
		{`daysSince(subject) == -1`, true},
		{`Record.custom_fields.region == "emea"`, true},
		{`status == 2 and not hasTag("spam")`, true},
		{`after(updated_at, "2019-01-04")`, true},
	}

	record := ticket()
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			f, err := Compile(tt.expression)
			require.NoError(t, err)

			got, err := f.Match(record)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMatchEvaluationError(t *testing.T) {
	f, err := Compile(`missing_field > 3`)
	require.NoError(t, err)

	got, err := f.Match(ticket())
	assert.False(t, got)
	require.Error(t, err)

	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, float64(42), evalErr.RecordID)
}

func TestCompilerCache(t *testing.T) {
	c := NewCompiler(WithCache(2))

	first, err := c.Compile(`priority > 1`)
	require.NoError(t, err)
	again, err := c.Compile(`priority > 1`)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, c.Size())

	_, err = c.Compile(`priority > 2`)
	require.NoError(t, err)
	_, err = c.Compile(`priority > 3`)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Size())

	// the oldest entry was evicted
	evicted, err := c.Compile(`priority > 1`)
	require.NoError(t, err)
	assert.NotSame(t, first, evicted)
}

func TestCompilerWithoutCache(t *testing.T) {
	c := NewCompiler()
	_, err := c.Compile(`priority > 1`)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Size())
}
