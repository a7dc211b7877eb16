package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIgnored(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"report.pdf", false},
		{"sub/dir/notes.md", false},
		{".DS_Store", true},
		{".hidden/file.txt", true},
		{"sub/.git/config", true},
		{"~$budget.xlsx", true},
		{"draft.docx~", true},
		{"download.pdf.part", true},
		{".notes.md.swp", true},
		{"", true},
		{".", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Ignored(tt.path))
		})
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	got := Options{DebounceWindow: time.Second}.WithDefaults()

	assert.Equal(t, time.Second, got.DebounceWindow)
	assert.Equal(t, DefaultOptions().PollInterval, got.PollInterval)
	assert.Equal(t, DefaultOptions().EventBufferSize, got.EventBufferSize)
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "RENAME", OpRename.String())
	assert.Equal(t, "UNKNOWN", Operation(42).String())
}
