package ingest

import (
	"testing"

	"taxrag/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMarkdown(t *testing.T) {
	ex, err := Extract("guia.md", []byte("# Título\n\nConteúdo fiscal."))
	require.NoError(t, err)
	assert.Equal(t, types.SourceMarkdown, ex.Source)
	assert.Contains(t, ex.Text, "Conteúdo fiscal.")
}

func TestExtractPlainText(t *testing.T) {
	ex, err := Extract("notas.txt", []byte("Anotações sobre tributação."))
	require.NoError(t, err)
	assert.Equal(t, types.SourceText, ex.Source)
}

func TestExtractRejectsUnsupportedType(t *testing.T) {
	_, err := Extract("dados.xlsx", []byte("x"))
	var exErr types.ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Contains(t, exErr.Reason, "unsupported")
}

func TestExtractRejectsInvalidUTF8(t *testing.T) {
	_, err := Extract("quebrado.txt", []byte{0xff, 0xfe, 0x41})
	var exErr types.ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Contains(t, exErr.Reason, "UTF-8")
}

func TestExtractRejectsEmptyContent(t *testing.T) {
	_, err := Extract("vazio.md", []byte("  \n\t "))
	var exErr types.ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Contains(t, exErr.Reason, "no text")
}

func TestContentStreamText(t *testing.T) {
	stream := []byte(`BT /F1 12 Tf (Residência) Tj ( fiscal \(183 dias\)) Tj ET`)
	got := contentStreamText(stream)
	// Accented bytes are outside the ASCII pass-through, spacing joins the
	// show-text fragments.
	assert.Contains(t, got, "fiscal (183 dias)")

	assert.Empty(t, contentStreamText([]byte("BT ET no strings here")))
	assert.Equal(t, "a\nb ", contentStreamText([]byte(`(a\nb)`)))
}
