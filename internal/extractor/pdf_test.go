package extractor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `Card Statement
Closing Date 03/28/2024
03/14  STARBUCKS STORE #123        $4.75
03/15  WHOLEFDS MKT 10234          $62.10`

func TestIsReadable(t *testing.T) {
	tests := []struct {
		name  string
		pages []string
		want  bool
	}{
		{"statement text", []string{samplePage}, true},
		{"too short", []string{"Statement"}, false},
		{"empty", nil, false},
		{"no statement words", []string{strings.Repeat("lorem ipsum dolor sit amet ", 5)}, false},
		{"garbage glyphs", []string{strings.Repeat("ÃÂ¥Ð¼ÑŽÃÂ¥Ð¼ÑŽ statement ", 10)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsReadable(tt.pages))
		})
	}
}

func TestTextQuality(t *testing.T) {
	assert.Equal(t, 0.0, textQuality(nil))
	assert.Equal(t, 1.0, textQuality([]string{"03/14 STARBUCKS $4.75"}))
	assert.Less(t, textQuality([]string{"ÃÂ¥Ð¼"}), 0.1)
}

func TestSplitPages(t *testing.T) {
	text := "page one\r\n" + PageBreak + "  \n" + PageBreak + "page three\n"
	assert.Equal(t, []string{"page one", "page three"}, SplitPages(text))
	assert.Nil(t, SplitPages(""))
}

func TestJoinRows(t *testing.T) {
	rows := map[int][]textItem{
		700: {{x: 300, s: "$4.75"}, {x: 72, s: "03/14"}, {x: 110, s: "STARBUCKS"}},
		720: {{x: 72, s: "Card Statement"}},
	}
	assert.Equal(t, "Card Statement\n03/14  STARBUCKS  $4.75", joinRows(rows))
}

func TestExtractPages_NotAPDF(t *testing.T) {
	data := []byte("this is not a pdf at all")
	_, err := ExtractPages(bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoText))
}

func TestExtractFile_Missing(t *testing.T) {
	_, err := ExtractFile(filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
