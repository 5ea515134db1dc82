package dataset

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"ecokernel/internal/model"
)

var setFileRegexp = regexp.MustCompile(`\.ya?ml$`)

// Set is an ordered collection of training examples.
type Set struct {
	Examples []model.Example `yaml:"examples"`
}

// DefaultAnchors returns three points on the diagonal of the unit cube whose
// targets swap the two outputs from one end to the other.
func DefaultAnchors() Set {
	return Set{Examples: []model.Example{
		{Input: []float64{0.1, 0.1, 0.1}, Target: []float64{0.1, 0.9}},
		{Input: []float64{0.5, 0.5, 0.5}, Target: []float64{0.5, 0.5}},
		{Input: []float64{0.9, 0.9, 0.9}, Target: []float64{0.9, 0.1}},
	}}
}

// Load reads a set from a YAML file, or merges every YAML file beneath a
// directory in lexical path order.
func Load(path string) (Set, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Set{}, errors.Wrap(err, "load examples")
	}
	if !info.IsDir() {
		return loadFile(path)
	}
	files, err := DiscoverSets(path)
	if err != nil {
		return Set{}, err
	}
	if len(files) == 0 {
		return Set{}, errors.Errorf("load examples: no set files under %s", path)
	}
	var merged Set
	for _, f := range files {
		s, err := loadFile(f)
		if err != nil {
			return Set{}, err
		}
		merged.Examples = append(merged.Examples, s.Examples...)
	}
	return merged, nil
}

func loadFile(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return Set{}, errors.Wrap(err, "open examples")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var s Set
	if err := dec.Decode(&s); err != nil {
		return Set{}, errors.Wrapf(err, "parse examples %s", path)
	}
	return s, nil
}

// DiscoverSets returns the YAML files beneath root, sorted.
func DiscoverSets(root string) ([]string, error) {
	entries := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if setFileRegexp.MatchString(d.Name()) {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "discover sets")
	}
	sort.Strings(entries)
	return entries, nil
}

// Validate checks that the set is non-empty and every example fits topo.
func (s Set) Validate(topo model.Topology) error {
	if len(s.Examples) == 0 {
		return errors.New("dataset: empty example set")
	}
	for i, ex := range s.Examples {
		if len(ex.Input) != topo.Input {
			return errors.Wrapf(&model.DimensionMismatchError{Operand: "input", Expected: topo.Input, Actual: len(ex.Input)}, "example %d", i)
		}
		if len(ex.Target) != topo.Output {
			return errors.Wrapf(&model.DimensionMismatchError{Operand: "target", Expected: topo.Output, Actual: len(ex.Target)}, "example %d", i)
		}
	}
	return nil
}
