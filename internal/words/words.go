package words

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrEmptyList is returned when a picker would have nothing to choose from
var ErrEmptyList = errors.New("word list cannot be empty")

// Default is the built-in word list
var Default = []string{
	"cat", "dog", "house", "sun", "moon", "tree", "flower", "fish", "bird", "car",
	"airplane", "book", "computer", "phone", "glasses", "pencil", "umbrella", "clock", "chair", "table",
}

//go:generate mockgen -package=mocks -destination=mocks/mock_picker.go github.com/KirkDiggler/doodle/internal/words Picker
type Picker interface {
	// Pick returns a word chosen uniformly at random, repeats allowed
	Pick() string
}

// Config for the random picker
type Config struct {
	// Words to choose from, Default when empty
	Words []string

	// Optional seed for testing
	Seed int64
}

// RandomPicker chooses words with a private source
type RandomPicker struct {
	mu     sync.Mutex
	words  []string
	random *rand.Rand
}

// New creates a new random picker
func New(cfg *Config) (*RandomPicker, error) {
	list := Default
	var seed int64
	if cfg != nil {
		if len(cfg.Words) > 0 {
			list = cfg.Words
		}
		seed = cfg.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	cleaned := make([]string, 0, len(list))
	for _, w := range list {
		if w = strings.TrimSpace(w); w != "" {
			cleaned = append(cleaned, w)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrEmptyList
	}

	return &RandomPicker{
		words:  cleaned,
		random: rand.New(rand.NewSource(seed)),
	}, nil
}

// Pick returns a random word from the list
func (p *RandomPicker) Pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.words[p.random.Intn(len(p.words))]
}

// Words returns a copy of the list
func (p *RandomPicker) Words() []string {
	out := make([]string, len(p.words))
	copy(out, p.words)
	return out
}

// listFile is the YAML layout of a word list file
type listFile struct {
	Words []string `yaml:"words"`
}

// LoadFile reads a YAML word list of the form `words: [cat, dog]`
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read word list: %w", err)
	}

	var f listFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse word list %s: %w", path, err)
	}

	if len(f.Words) == 0 {
		return nil, ErrEmptyList
	}

	return f.Words, nil
}
