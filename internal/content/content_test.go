package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbedded(t *testing.T) {
	require.NoError(t, LoadEmbedded())

	p := Get("beneficios-tributarios")
	require.NotNil(t, p)
	assert.Equal(t, "Beneficios tributarios de la Ley 1715 de 2014", p.Title)
	assert.Equal(t, 2025, p.Updated.Year())
	assert.Contains(t, p.HTMLContent, "<h2>1. Incentivos tributarios</h2>")
	assert.Contains(t, p.HTMLContent, "<strong>50%</strong>")
	assert.Len(t, p.Headings, 5)
	assert.Equal(t, "5. Vehículos eléctricos", p.Headings[4])
	assert.Equal(t, []string{
		"https://www.funcionpublica.gov.co/eva/gestornormativo/norma.php?i=57353",
		"https://www1.upme.gov.co/",
		"https://www.dian.gov.co/",
	}, p.Links, "relative links are not collected")

	// No description in the frontmatter: taken from the first paragraph.
	assert.True(t, strings.HasPrefix(p.Description, "La Ley 1715 de 2014 promueve"))
	assert.LessOrEqual(t, utf8.RuneCountInString(p.Description), maxDescription)
	assert.True(t, strings.HasSuffix(p.Description, "…"))

	assert.Nil(t, Get("missing"))
	assert.Len(t, All(), 1)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("faq.md", "---\ntitle: Preguntas\ndescription: Respuestas cortas\n---\n## Uno\n\nTexto *corto* en [DIAN](https://www.dian.gov.co/) y [otra vez](https://www.dian.gov.co/).\n")
	write("notes.txt", "ignored")

	require.NoError(t, LoadDir(dir))
	t.Cleanup(func() { LoadEmbedded() })

	p := Get("faq")
	require.NotNil(t, p, "slug falls back to the file name")
	assert.Equal(t, "Respuestas cortas", p.Description)
	assert.Equal(t, []string{"Uno"}, p.Headings)
	assert.Equal(t, []string{"https://www.dian.gov.co/"}, p.Links)
	assert.Len(t, All(), 1)

	write("broken.md", "no frontmatter here")
	assert.Error(t, LoadDir(dir))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "corto", truncate("corto", 10))
	assert.Equal(t, "uno dos…", truncate("uno dos tres cuatro", 12))
}
