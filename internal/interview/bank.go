package interview

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/victornm/einterview/internal/domain"
)

// QuestionSet is a named list of questions in a question bank file.
type QuestionSet struct {
	Name      string            `yaml:"name"`
	Title     string            `yaml:"title"`
	Questions []domain.Question `yaml:"questions"`
}

// Bank holds the question sets interviews can be created from.
type Bank struct {
	sets map[string]QuestionSet
}

type bankFile struct {
	Sets []QuestionSet `yaml:"sets"`
}

// LoadBank reads a YAML question bank. An empty path gives an empty bank.
func LoadBank(path string) (*Bank, error) {
	if path == "" {
		return &Bank{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open question bank %s: %w", path, err)
	}
	defer f.Close()

	return ParseBank(f)
}

func ParseBank(r io.Reader) (*Bank, error) {
	var bf bankFile
	if err := yaml.NewDecoder(r).Decode(&bf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	b := &Bank{sets: make(map[string]QuestionSet, len(bf.Sets))}
	for i, s := range bf.Sets {
		if s.Name == "" {
			return nil, fmt.Errorf("question set #%d has no name", i+1)
		}
		if _, dup := b.sets[s.Name]; dup {
			return nil, fmt.Errorf("question set %q is defined twice", s.Name)
		}
		if err := validateQuestions(s.Questions); err != nil {
			return nil, fmt.Errorf("question set %q: %w", s.Name, err)
		}
		b.sets[s.Name] = s
	}

	return b, nil
}

func (b *Bank) Get(name string) (QuestionSet, bool) {
	s, ok := b.sets[name]
	return s, ok
}

// Names returns the set names in lexical order.
func (b *Bank) Names() []string {
	names := make([]string, 0, len(b.sets))
	for n := range b.sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
