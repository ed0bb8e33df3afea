package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rkllmd/internal/common/fsutil"
	"rkllmd/pkg/types"
)

// backendByExt maps model file extensions to the engine backend able to load them.
var backendByExt = map[string]string{
	".rkllm": "rkllm",
	".gguf":  "llama",
}

// LoadDir scans a directory for model files (*.rkllm, *.gguf).
// ID is the file name; Path is the absolute file path.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		backend, ok := backendByExt[ext]
		if !ok {
			continue
		}
		models = append(models, types.Model{
			ID:      name,
			Name:    strings.TrimSuffix(name, filepath.Ext(name)),
			Path:    filepath.Join(abs, name),
			Backend: backend,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// ForModel lists the models next to modelPath and marks modelPath as loaded.
// If the directory cannot be read the loaded model is still returned.
func ForModel(modelPath, backend string) []types.Model {
	if modelPath == "" {
		return nil
	}
	abs, err := filepath.Abs(modelPath)
	if err != nil {
		abs = modelPath
	}
	loaded := types.Model{
		ID:      filepath.Base(abs),
		Name:    strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
		Path:    abs,
		Backend: backend,
		Loaded:  true,
	}
	models, err := LoadDir(filepath.Dir(abs))
	if err != nil {
		return []types.Model{loaded}
	}
	found := false
	for i := range models {
		if models[i].Path == abs {
			models[i].Loaded = true
			models[i].Backend = backend
			found = true
		}
	}
	if !found {
		models = append([]types.Model{loaded}, models...)
	}
	return models
}
