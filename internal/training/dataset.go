// Package training prepares fine-tuning datasets and job descriptions for
// the prescription model and publishes them to the model store.
package training

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/bytedance/sonic"
)

// Target is the structured answer the model learns to produce.
type Target struct {
	Medication   string `json:"medication,omitempty"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type Example struct {
	InputText string `json:"input_text"`
	Output    Target `json:"output"`
}

// record is one line of train.jsonl / test.jsonl.
type record struct {
	InputText  string `json:"input_text"`
	OutputText string `json:"output_text"`
}

var ErrNoExamples = errors.New("no training examples")

// SeedExamples are always part of the dataset.
func SeedExamples() []Example {
	return []Example{
		{
			InputText: "Patient prescribed Amoxicillin 500mg three times daily for 7 days",
			Output: Target{
				Medication: "Amoxicillin",
				Dosage:     "500mg",
				Frequency:  "three times daily",
				Duration:   "7 days",
			},
		},
		{
			InputText: "Take Metformin 1000mg twice daily with meals",
			Output: Target{
				Medication:   "Metformin",
				Dosage:       "1000mg",
				Frequency:    "twice daily",
				Instructions: "with meals",
			},
		},
	}
}

// ReadExamples parses JSON Lines of {"input_text": ..., "output": {...}}.
// Blank lines are skipped.
func ReadExamples(r io.Reader) ([]Example, error) {
	var examples []Example
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var ex Example
		if err := sonic.UnmarshalString(text, &ex); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if strings.TrimSpace(ex.InputText) == "" {
			return nil, fmt.Errorf("line %d: input_text is empty", line)
		}
		examples = append(examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}
	return examples, nil
}

// Split shuffles examples with seed and holds out ceil(n*testSize) of them,
// always leaving at least one example for training.
func Split(examples []Example, testSize float64, seed uint64) (train, test []Example, err error) {
	if len(examples) == 0 {
		return nil, nil, ErrNoExamples
	}
	if testSize < 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in [0, 1), got %v", testSize)
	}

	shuffled := make([]Example, len(examples))
	copy(shuffled, examples)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nTest := int(math.Ceil(float64(len(shuffled)) * testSize))
	nTest = min(nTest, len(shuffled)-1)

	return shuffled[nTest:], shuffled[:nTest], nil
}

func writeRecords(w io.Writer, examples []Example, prompt func(string) string) error {
	bw := bufio.NewWriter(w)
	for _, ex := range examples {
		target, err := sonic.MarshalString(ex.Output)
		if err != nil {
			return fmt.Errorf("encode target: %w", err)
		}
		line, err := sonic.Marshal(record{InputText: prompt(ex.InputText), OutputText: target})
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if _, err := bw.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return bw.Flush()
}
