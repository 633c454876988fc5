package skill

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Discover scans a skills directory and loads every subdirectory holding a
// SKILL.md. Directories that fail to parse are skipped with a warning;
// underscore-prefixed directories (_pending, _versions) are ignored, with
// _evolved included since promoted skills live there.
func Discover(skillsDir string) (map[string]*Skill, error) {
	skills := make(map[string]*Skill)

	load := func(dir string) {
		sk, err := Load(dir)
		if err != nil {
			slog.Default().With("component", "skills").Warn("skipping skill",
				"dir", dir, "error", err)
			return
		}
		if existing, ok := skills[sk.Name]; ok {
			slog.Default().With("component", "skills").Warn("duplicate skill name",
				"name", sk.Name, "kept", existing.Dir, "ignored", dir)
			return
		}
		if sk.Language == LanguageUnknown && sk.Kind != KindBashTool && sk.Kind != KindPromptOnly {
			slog.Default().With("component", "skills").Warn("skill language unknown",
				"name", sk.Name, "dir", dir)
		}
		skills[sk.Name] = sk
	}

	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return skills, nil
		}
		return nil, fmt.Errorf("read skills dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "_") && name != "_evolved" {
			continue
		}
		if name == "_evolved" {
			subEntries, err := os.ReadDir(filepath.Join(skillsDir, name))
			if err != nil {
				continue
			}
			for _, sub := range subEntries {
				if sub.IsDir() {
					if hasSkillFile(filepath.Join(skillsDir, name, sub.Name())) {
						load(filepath.Join(skillsDir, name, sub.Name()))
					}
				}
			}
			continue
		}
		if hasSkillFile(filepath.Join(skillsDir, name)) {
			load(filepath.Join(skillsDir, name))
		}
	}
	return skills, nil
}

func hasSkillFile(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, SkillFilename))
	return err == nil
}

// Watcher reindexes the skills directory when its contents change,
// debouncing bursts of filesystem events.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func()
	logger   *slog.Logger
	stop     chan struct{}
}

// NewWatcher builds a watcher over a skills directory. onChange is invoked
// after each debounced change burst.
func NewWatcher(skillsDir string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(skillsDir); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		watcher:  fsw,
		debounce: 500 * time.Millisecond,
		onChange: onChange,
		logger:   slog.Default().With("component", "skills"),
		stop:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		case <-fire:
			w.onChange()
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.watcher.Close()
}
