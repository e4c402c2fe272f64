// Package sound plays a clip whose file name matches a chat or SMS text that
// was not a gate command.
package sound

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const DefaultExt = ".mp3"

// Library resolves texts to clips in Dir.
type Library struct {
	Dir string
	Ext string
}

func NewLibrary(dir string) *Library {
	return &Library{Dir: dir, Ext: DefaultExt}
}

// Lookup returns the first clip (in directory order) whose name starts with
// text, or whose stem is a prefix of text. Empty text never matches. A
// missing directory is not an error.
func (l *Library) Lookup(text string) (string, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" || l.Dir == "" {
		return "", false, nil
	}
	ext := l.Ext
	if ext == "" {
		ext = DefaultExt
	}

	entries, err := os.ReadDir(l.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sound dir %s: %w", l.Dir, err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		if stem == "" {
			continue
		}
		if strings.HasPrefix(name, text) || strings.HasPrefix(text, stem) {
			return filepath.Join(l.Dir, name), true, nil
		}
	}
	return "", false, nil
}
