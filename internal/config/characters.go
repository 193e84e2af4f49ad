package config

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/netixc/agent-avatar-app/internal/motion"
)

// ModelConfig describes one rigged character model. It is immutable per
// load; switching to a different ModelConfig means a full model reload.
type ModelConfig struct {
	Name               string        `mapstructure:"name"`
	URL                string        `mapstructure:"url"`
	PointerInteractive bool          `mapstructure:"pointer_interactive"`
	IdleMotionGroup    string        `mapstructure:"idle_motion_group"`
	DefaultEmotion     string        `mapstructure:"default_emotion"`
	InitialXShift      float64       `mapstructure:"initial_x_shift"`
	InitialYShift      float64       `mapstructure:"initial_y_shift"`
	ScaleHint          float64       `mapstructure:"scale_hint"` // 0 means "compute from container"
	TapMotions         motion.TapMap `mapstructure:"tap_motions"`
}

// CharacterFile is the parsed characters.yaml
type CharacterFile struct {
	Characters map[string]ModelConfig `mapstructure:"characters"`
}

// LoadCharacters parses the character file at path
func LoadCharacters(path string) (*CharacterFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read character file %s: %w", path, err)
	}

	cf := &CharacterFile{}
	if err := v.Unmarshal(cf); err != nil {
		return nil, fmt.Errorf("failed to parse character file %s: %w", path, err)
	}

	for id, mc := range cf.Characters {
		if mc.URL == "" {
			return nil, fmt.Errorf("character %q has no model url", id)
		}
		if mc.Name == "" {
			mc.Name = id
			cf.Characters[id] = mc
		}
	}

	return cf, nil
}

// Get returns the character with the given id, or the only character when
// id is empty and exactly one is defined.
func (cf *CharacterFile) Get(id string) (ModelConfig, bool) {
	if id == "" && len(cf.Characters) == 1 {
		for _, mc := range cf.Characters {
			return mc, true
		}
	}
	mc, ok := cf.Characters[id]
	return mc, ok
}

// IDs returns the character ids in sorted order
func (cf *CharacterFile) IDs() []string {
	ids := make([]string, 0, len(cf.Characters))
	for id := range cf.Characters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WatchCharacters watches the character file and calls onChange with the
// re-parsed file after each write. Parse failures are reported through
// onError and the previous configuration stays active. The returned stop
// function ends the watch.
func WatchCharacters(path string, onChange func(*CharacterFile), onError func(error)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: editors replace files on save, which drops the
	// watch on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cf, err := LoadCharacters(path)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				onChange(cf)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
