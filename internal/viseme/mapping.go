// Package viseme reads and writes the mouth-index to texture mapping file.
package viseme

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lectorlips/internal/apperr"
)

const (
	// DefaultFileName is used when no mapping file is named.
	DefaultFileName = "viseme_mapping.json"
	// Count is the number of mouth shapes in a generated mapping.
	Count = 15
)

var (
	ErrMissingMapping = errors.New("the viseme mapping configuration file does not exist yet; create it with the create-viseme-mapping command or by hand")
	ErrEmptyMapping   = errors.New("the viseme mapping file is empty")
)

// Mapping maps stringified mouth indices to texture suffixes.
type Mapping map[string]string

// Lookup returns the suffix for mouth.
func (m Mapping) Lookup(mouth int) (string, bool) {
	s, ok := m[strconv.Itoa(mouth)]
	return s, ok
}

// New builds a mapping from suffixes ordered by mouth index.
func New(suffixes []string) (Mapping, error) {
	err := validation.Validate(suffixes,
		validation.Required,
		validation.Length(Count, Count).Error(fmt.Sprintf("exactly %d texture names are required", Count)),
		validation.Each(validation.Required),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidArguments, err)
	}
	m := make(Mapping, len(suffixes))
	for i, s := range suffixes {
		m[strconv.Itoa(i)] = s
	}
	return m, nil
}

// ValidateFileName checks that name looks like a mapping file.
func ValidateFileName(name string) error {
	if !strings.HasSuffix(name, ".json") {
		return fmt.Errorf("%w: the viseme mapping filename %q does not end with .json", apperr.ErrInvalidArguments, name)
	}
	return nil
}

// MarshalJSON writes keys in numeric order with four-space indentation.
// Non-numeric keys follow in lexical order.
func (m Mapping) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return keys[i] < keys[j]
	})

	if len(keys) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, k := range keys {
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.WriteString("    ")
		buf.Write(kb)
		buf.WriteString(": ")
		buf.Write(vb)
		if i < len(keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}")
	return buf.Bytes(), nil
}

// Read loads the mapping at path. A missing file yields ErrMissingMapping.
func Read(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMissingMapping
		}
		return nil, fmt.Errorf("viseme: read %s: %w", path, err)
	}
	m := Mapping{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("viseme: parse %s: %w", path, err)
	}
	return m, nil
}

// Load reads the mapping and rejects an empty one.
func Load(path string) (Mapping, error) {
	m, err := Read(path)
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrEmptyMapping
	}
	return m, nil
}

// Write creates path exclusively; an existing file yields apperr.ErrAlreadyExists.
func Write(path string, m Mapping) error {
	data, err := m.MarshalJSON()
	if err != nil {
		return fmt.Errorf("viseme: encode: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("viseme: %s: %w", path, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("viseme: create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("viseme: write %s: %w", path, err)
	}
	return f.Close()
}

// Replace removes any existing file at path, then writes m.
func Replace(path string, m Mapping) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("viseme: remove %s: %w", path, err)
	}
	return Write(path, m)
}
