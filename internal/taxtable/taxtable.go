// Package taxtable loads the per-year tax parameters from YAML and keeps one
// validated calculator per year. Tables can be reloaded at runtime; a table
// that fails validation never replaces the one in use.
package taxtable

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"ahorrove/internal/logger"
	"ahorrove/internal/taxcalc"
)

//go:embed tables.yaml
var embeddedTables []byte

var ErrUnknownYear = errors.New("taxtable: no table for year")

type tableFile struct {
	DefaultYear int              `yaml:"default_year"`
	Years       []taxcalc.Params `yaml:"years"`
}

type snapshot struct {
	defaultYear int
	calcs       map[int]*taxcalc.Calculator
}

// Registry serves calculators by tax year.
type Registry struct {
	mu   sync.RWMutex
	snap snapshot
	path string
	// override is the operator's default year; 0 follows the document.
	override int
}

// Parse decodes and validates a tables document. Every year must validate.
func Parse(data []byte) (map[int]*taxcalc.Calculator, int, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, 0, fmt.Errorf("taxtable: decode: %w", err)
	}
	if len(f.Years) == 0 {
		return nil, 0, errors.New("taxtable: no years defined")
	}
	calcs := make(map[int]*taxcalc.Calculator, len(f.Years))
	for _, p := range f.Years {
		if _, dup := calcs[p.Year]; dup {
			return nil, 0, fmt.Errorf("taxtable: year %d defined twice", p.Year)
		}
		c, err := taxcalc.New(p)
		if err != nil {
			return nil, 0, fmt.Errorf("taxtable: year %d: %w", p.Year, err)
		}
		calcs[p.Year] = c
	}
	def := f.DefaultYear
	if def == 0 {
		for y := range calcs {
			if y > def {
				def = y
			}
		}
	}
	if _, ok := calcs[def]; !ok {
		return nil, 0, fmt.Errorf("%w %d (default_year)", ErrUnknownYear, def)
	}
	return calcs, def, nil
}

// Load builds a Registry from path, or from the embedded tables when path is
// empty. A non-zero defaultYear overrides the document's default_year, on
// this load and on every reload.
func Load(path string, defaultYear int) (*Registry, error) {
	r := &Registry{path: path, override: defaultYear}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	data := embeddedTables
	if r.path != "" {
		b, err := os.ReadFile(r.path)
		if err != nil {
			return fmt.Errorf("taxtable: read %s: %w", r.path, err)
		}
		data = b
	}
	calcs, def, err := Parse(data)
	if err != nil {
		return err
	}
	if r.override != 0 {
		if _, ok := calcs[r.override]; !ok {
			return fmt.Errorf("%w %d", ErrUnknownYear, r.override)
		}
		def = r.override
	}
	r.mu.Lock()
	r.snap = snapshot{defaultYear: def, calcs: calcs}
	r.mu.Unlock()
	return nil
}

// Reload re-reads the tables file. On error the current tables stay in use.
// A changed default_year takes effect unless an override is set.
func (r *Registry) Reload() error {
	return r.load()
}

// Calculator returns the calculator for year; year 0 means the default year.
func (r *Registry) Calculator(year int) (*taxcalc.Calculator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if year == 0 {
		year = r.snap.defaultYear
	}
	c, ok := r.snap.calcs[year]
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownYear, year)
	}
	return c, nil
}

// DefaultYear is the year used when a request names none.
func (r *Registry) DefaultYear() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.defaultYear
}

// Years lists the loaded years in ascending order.
func (r *Registry) Years() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	years := make([]int, 0, len(r.snap.calcs))
	for y := range r.snap.calcs {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Watch reloads the tables whenever the file changes, until ctx is done.
// It is a no-op for the embedded tables.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("taxtable: watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors replace files by rename.
	target := filepath.Clean(r.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("taxtable: watch %s: %w", target, err)
	}
	logger.Info("tax tables watcher started", map[string]interface{}{"path": target})

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(200 * time.Millisecond)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("tax tables watcher error", map[string]interface{}{"error": err.Error()})
		case <-debounce.C:
			if err := r.Reload(); err != nil {
				logger.Error("tax tables reload rejected, keeping previous", map[string]interface{}{
					"path":  target,
					"error": err.Error(),
				})
				continue
			}
			logger.Info("tax tables reloaded", map[string]interface{}{
				"path":  target,
				"years": r.Years(),
			})
		}
	}
}
