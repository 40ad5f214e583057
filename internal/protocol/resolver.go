package protocol

import (
	"embed"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"metacurator/internal/logging"
)

//go:embed defaults/system.yaml defaults/fields/*.yaml
var defaultsFS embed.FS

const cacheSize = 32

// Resolver merges the four layer sources into one effective rule set.
//
// Sources, in accumulation order:
//  1. system: embedded defaults/system.yaml, always present, read-only
//  2. user: <baseDir>/protocol.yaml, always attempted
//  3. field: only when a field name was explicitly selected; a
//     user-authored <baseDir>/fields/<name>.yaml wins over the embedded
//     built-in of the same name
//  4. project: only when a project id is given and
//     <baseDir>/projects/<id>.yaml exists
//
// A source that fails to load or parse contributes nothing. Resolution never
// fails: worst case the result is the system layer alone (and even that
// degrades to empty if the embedded data is unreadable, which would be a
// packaging bug).
type Resolver struct {
	baseDir string
	logger  logging.Logger
	cache   *lru.Cache[string, Effective]
}

// NewResolver builds a resolver rooted at baseDir (typically
// ~/.config/metacurator). An empty baseDir disables the user, field-override
// and project sources.
func NewResolver(baseDir string, logger logging.Logger) *Resolver {
	cache, _ := lru.New[string, Effective](cacheSize)
	return &Resolver{
		baseDir: baseDir,
		logger:  logging.OrNop(logger),
		cache:   cache,
	}
}

// DefaultBaseDir returns the standard per-user protocol directory.
func DefaultBaseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "metacurator")
}

// Resolve produces the effective protocol for the given selection. fieldName
// is only honoured when the user selected it explicitly; callers must not
// guess it from file contents.
func (r *Resolver) Resolve(projectID, fieldName string) Effective {
	key := fieldName + "\x00" + projectID
	if cached, ok := r.cache.Get(key); ok {
		return cached
	}

	var effective Effective
	effective.Accumulate(r.systemLayer())
	effective.Accumulate(r.userLayer())
	if fieldName != "" {
		effective.Accumulate(r.fieldLayer(fieldName))
	}
	if projectID != "" {
		effective.Accumulate(r.projectLayer(projectID))
	}

	r.cache.Add(key, effective)
	return effective
}

// InvalidateCache drops all cached resolutions, e.g. after a layer file was
// edited.
func (r *Resolver) InvalidateCache() {
	r.cache.Purge()
}

func (r *Resolver) systemLayer() Layer {
	data, err := defaultsFS.ReadFile("defaults/system.yaml")
	if err != nil {
		r.logger.Error("embedded system protocol unreadable: %v", err)
		return Layer{Name: "system", ReadOnly: true}
	}
	layer, err := ParseLayer(data)
	if err != nil {
		r.logger.Error("embedded system protocol invalid: %v", err)
		return Layer{Name: "system", ReadOnly: true}
	}
	return layer
}

func (r *Resolver) userLayer() Layer {
	if r.baseDir == "" {
		return Layer{Name: "user"}
	}
	path := filepath.Join(r.baseDir, "protocol.yaml")
	layer, err := LoadLayerFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("user protocol layer %s skipped: %v", path, err)
		}
		return Layer{Name: "user"}
	}
	return layer
}

func (r *Resolver) fieldLayer(fieldName string) Layer {
	if r.baseDir != "" {
		path := filepath.Join(r.baseDir, "fields", fieldName+".yaml")
		if layer, err := LoadLayerFile(path); err == nil {
			return layer
		} else if !os.IsNotExist(err) {
			r.logger.Warn("field protocol layer %s skipped: %v", path, err)
		}
	}
	data, err := defaultsFS.ReadFile("defaults/fields/" + fieldName + ".yaml")
	if err != nil {
		r.logger.Debug("no built-in field protocol for %q", fieldName)
		return Layer{Name: "field:" + fieldName}
	}
	layer, err := ParseLayer(data)
	if err != nil {
		r.logger.Warn("built-in field protocol %q invalid: %v", fieldName, err)
		return Layer{Name: "field:" + fieldName}
	}
	return layer
}

func (r *Resolver) projectLayer(projectID string) Layer {
	if r.baseDir == "" {
		return Layer{Name: "project:" + projectID}
	}
	path := filepath.Join(r.baseDir, "projects", projectID+".yaml")
	layer, err := LoadLayerFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("project protocol layer %s skipped: %v", path, err)
		}
		return Layer{Name: "project:" + projectID}
	}
	return layer
}

// BuiltinFields lists the names of the embedded field protocols.
func BuiltinFields() []string {
	entries, err := defaultsFS.ReadDir("defaults/fields")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if filepath.Ext(name) == ".yaml" {
			names = append(names, name[:len(name)-len(".yaml")])
		}
	}
	return names
}
