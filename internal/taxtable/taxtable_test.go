package taxtable

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ahorrove/internal/taxcalc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEmbeddedTables(t *testing.T) {
	r, err := Load("", 0)
	require.NoError(t, err)

	assert.Equal(t, []int{2024, 2025}, r.Years())
	assert.Equal(t, 2025, r.DefaultYear())

	c, err := r.Calculator(0)
	require.NoError(t, err)
	p := c.Params()
	assert.Equal(t, 49799.0, p.UVTValue)
	assert.True(t, math.IsInf(p.Brackets[len(p.Brackets)-1].UpperUVT, 1))

	want := taxcalc.Params2025()
	assert.Equal(t, want.Brackets, p.Brackets)

	c24, err := r.Calculator(2024)
	require.NoError(t, err)
	assert.Equal(t, 47065.0, c24.Params().UVTValue)

	_, err = r.Calculator(2019)
	assert.True(t, errors.Is(err, ErrUnknownYear))
}

func TestLoadDefaultYearOverride(t *testing.T) {
	r, err := Load("", 2024)
	require.NoError(t, err)
	assert.Equal(t, 2024, r.DefaultYear())

	_, err = Load("", 2030)
	assert.ErrorIs(t, err, ErrUnknownYear)
}

func TestParseRejectsInvalidTables(t *testing.T) {
	cases := map[string]string{
		"empty":     "years: []",
		"malformed": "years: [",
		"duplicate": strings.Repeat(yearDoc(2025, 49799), 2),
		"broken offset": strings.Replace(yearDoc(2025, 49799),
			"offset_uvt: 115.9", "offset_uvt: 120", 1),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if !strings.HasPrefix(doc, "years") {
				doc = "years:\n" + doc
			}
			_, _, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}

	_, _, err := Parse([]byte("years:\n" + yearDoc(2025, 49799) + "default_year: 2031\n"))
	assert.ErrorIs(t, err, ErrUnknownYear)
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	path := writeTables(t, t.TempDir(), 49799)
	r, err := Load(path, 0)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("years: [{year: 2025, uvt_value: -1}]"), 0o644))
	assert.Error(t, r.Reload())

	c, err := r.Calculator(2025)
	require.NoError(t, err)
	assert.Equal(t, 49799.0, c.Params().UVTValue)

	writeTables(t, filepath.Dir(path), 50000)
	require.NoError(t, r.Reload())
	c, err = r.Calculator(2025)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, c.Params().UVTValue)
}

func TestReloadFollowsDocumentDefaultYear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	doc := func(def int) []byte {
		return []byte("default_year: " + strconv.Itoa(def) + "\nyears:\n" + yearDoc(2024, 47065) + yearDoc(2025, 49799))
	}
	require.NoError(t, os.WriteFile(path, doc(2025), 0o644))

	r, err := Load(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 2025, r.DefaultYear())

	require.NoError(t, os.WriteFile(path, doc(2024), 0o644))
	require.NoError(t, r.Reload())
	assert.Equal(t, 2024, r.DefaultYear())

	pinned, err := Load(path, 2025)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, doc(2024), 0o644))
	require.NoError(t, pinned.Reload())
	assert.Equal(t, 2025, pinned.DefaultYear(), "an explicit override survives reloads")

	// Override year removed from the file: reload rejected, tables kept.
	require.NoError(t, os.WriteFile(path, []byte("years:\n"+yearDoc(2024, 47065)), 0o644))
	assert.ErrorIs(t, pinned.Reload(), ErrUnknownYear)
	assert.Equal(t, []int{2024, 2025}, pinned.Years())
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeTables(t, dir, 49799)
	r, err := Load(path, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeTables(t, dir, 51000)

	require.Eventually(t, func() bool {
		c, err := r.Calculator(2025)
		return err == nil && c.Params().UVTValue == 51000
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatchEmbeddedReturnsOnCancel(t *testing.T) {
	r, err := Load("", 0)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, r.Watch(ctx))
}

func yearDoc(year int, uvt float64) string {
	var b strings.Builder
	b.WriteString("  - year: " + strconv.Itoa(year) + "\n")
	b.WriteString("    uvt_value: " + strconv.FormatFloat(uvt, 'f', -1, 64) + "\n")
	b.WriteString(`    max_deductions_uvt: 1340
    max_deductions_rate: 0.40
    max_exemption_uvt: 790
    exemption_rate: 0.25
    optimal_target_uvt: 1700
    brackets:
      - {name: "0%", upper_uvt: 1090, rate: 0, offset_uvt: 0}
      - {name: "19%", upper_uvt: 1700, rate: 0.19, offset_uvt: 0}
      - {name: "28%", upper_uvt: 4100, rate: 0.28, offset_uvt: 115.9}
      - {name: "33%", upper_uvt: .inf, rate: 0.33, offset_uvt: 787.9}
`)
	return b.String()
}

func writeTables(t *testing.T, dir string, uvt float64) string {
	t.Helper()
	path := filepath.Join(dir, "tables.yaml")
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte("years:\n"+yearDoc(2025, uvt)), 0o644))
	require.NoError(t, os.Rename(tmp, path))
	return path
}
