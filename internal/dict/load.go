package dict

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file JSONFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return FromJSON(file)
}

func EnsureLoaded(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("empty dictionary path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("dictionary path %s is a directory", path)
	}
	return Load(path)
}

// Resolve returns the dictionary at path, or the built-in table when path is
// empty.
func Resolve(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return EnsureLoaded(path)
}

// ToJSON renders s in the form accepted by FromJSON.
func ToJSON(s *Store) JSONFile {
	var file JSONFile
	for _, tag := range s.Tags() {
		e, _ := s.Lookup(tag)
		je := JSONEntry{
			Tag:      int(e.Tag),
			Name:     e.Name,
			Kind:     string(e.Kind),
			Width:    e.Width,
			Group:    e.Group,
			MaxDelta: e.MaxDelta,
			Circular: e.Circular,
		}
		if e.HasRange {
			min, max := e.Min, e.Max
			je.Min, je.Max = &min, &max
		}
		file.Entries = append(file.Entries, je)
	}
	return file
}
