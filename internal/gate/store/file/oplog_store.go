// Package file writes the operation log as dated, tab-separated text files
// that the reporting scripts parse.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/gatectl/internal/gate/store"
)

// OperationLogStore appends one line per entry to the file named by
// PathTemplate, where the single %s is replaced by the entry's date
// (YYYYMMDD). Each line is written with one write call on an O_APPEND
// descriptor.
type OperationLogStore struct {
	pathTemplate string
	mu           sync.Mutex
}

func NewOperationLogStore(pathTemplate string) *OperationLogStore {
	return &OperationLogStore{pathTemplate: pathTemplate}
}

// PathFor returns the log file that receives entries stamped t.
func (s *OperationLogStore) PathFor(t time.Time) string {
	if !strings.Contains(s.pathTemplate, "%s") {
		return s.pathTemplate
	}
	return fmt.Sprintf(s.pathTemplate, t.Format("20060102"))
}

func (s *OperationLogStore) Append(_ context.Context, e store.OperationLogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	path := s.PathFor(e.Timestamp)

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("operation log mkdir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("operation log open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(e)); err != nil {
		return fmt.Errorf("operation log write: %w", err)
	}
	return nil
}

// FormatLine renders e in the tab-separated layout:
//
//	<ctime>\tCall:\t<caller>\t<granted>
//	<ctime>\tMsg:\t<sender>\t<text>\t<granted>\t<sound played>
//	<ctime>\tRF:\t<code>\t<granted>
//	<ctime>\tLocalTrigger:\t<source>\t<granted>
func FormatLine(e store.OperationLogEntry) string {
	ts := e.Timestamp.Local().Format(time.ANSIC)
	id := clean(e.Identity)
	switch e.Kind {
	case store.KindMessage:
		return fmt.Sprintf("%s\tMsg:\t%s\t%s\t%s\t%s\n",
			ts, id, clean(e.Text), titleBool(e.Granted), titleBool(e.SoundPlayed))
	case store.KindRF:
		return fmt.Sprintf("%s\tRF:\t%s\t%s\n", ts, id, titleBool(e.Granted))
	case store.KindLocalTrigger:
		return fmt.Sprintf("%s\tLocalTrigger:\t%s\t%s\n", ts, id, titleBool(e.Granted))
	default:
		return fmt.Sprintf("%s\tCall:\t%s\t%s\n", ts, id, titleBool(e.Granted))
	}
}

var lineBreakers = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

func clean(s string) string {
	if s == "" {
		return "-"
	}
	return lineBreakers.Replace(s)
}

// titleBool keeps the booleans readable by the existing report parser, which
// compares against "true" case-insensitively.
func titleBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
