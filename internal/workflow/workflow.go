// Package workflow loads declarative step sequences from YAML documents.
package workflow

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/vinayprograms/warden/internal/faults"
)

//go:embed schema.json
var schemaSource string

const schemaURL = "https://warden.schemas.local/workflow.schema.json"

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaSource)); err != nil {
		panic(fmt.Sprintf("workflow schema load failed: %v", err))
	}
	compiledSchema = c.MustCompile(schemaURL)
}

// OnError selects what happens after a step's retries are exhausted.
type OnError string

const (
	OnErrorStop     OnError = "stop"     // propagate and abort the run
	OnErrorContinue OnError = "continue" // bind a null result and go on
	OnErrorSkip     OnError = "skip"     // leave the output unbound and go on
)

// BackoffKind selects the delay schedule between attempts.
type BackoffKind string

const (
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

// Duration is a time.Duration written as "500ms", "2s" and so on.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// RetryPolicy bounds re-execution of a failing step.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     BackoffKind   `yaml:"backoff"`
	Base        Duration      `yaml:"base"`
	Cap         Duration      `yaml:"cap"`
	RetryOn     []faults.Kind `yaml:"retry_on"`
}

// Attempts returns the total number of tries, at least one.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Retries reports whether a failure of kind may be retried. An empty
// allow-list retries everything.
func (p RetryPolicy) Retries(kind faults.Kind) bool {
	if len(p.RetryOn) == 0 {
		return true
	}
	for _, k := range p.RetryOn {
		if k == kind {
			return true
		}
	}
	return false
}

// Step is one declared unit of work: either a tool call or a prompt for the agent.
type Step struct {
	Name    string                 `yaml:"name"`
	Tool    string                 `yaml:"tool"`
	Args    map[string]interface{} `yaml:"args"`
	Prompt  string                 `yaml:"prompt"`
	Output  string                 `yaml:"output"`
	Retry   RetryPolicy            `yaml:"retry"`
	OnError OnError                `yaml:"on_error"`
	ForEach string                 `yaml:"for_each"`
}

// IsPrompt reports whether the step queries the agent instead of calling a tool.
func (s Step) IsPrompt() bool {
	return s.Tool == "" && s.Prompt != ""
}

// ErrorPolicy returns OnError, defaulting to stop.
func (s Step) ErrorPolicy() OnError {
	if s.OnError == "" {
		return OnErrorStop
	}
	return s.OnError
}

// Workflow is a named sequence of steps.
type Workflow struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Inputs      map[string]string `yaml:"inputs"`
	Steps       []Step            `yaml:"steps"`
}

// LoadFile reads and validates a workflow document.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	wf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wf, nil
}

// Parse validates data against the workflow schema and decodes it.
func Parse(data []byte) (*Workflow, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	instance, err := toJSONValue(doc)
	if err != nil {
		return nil, err
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("decoding workflow: %w", err)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Validate checks constraints the schema cannot express.
func (wf *Workflow) Validate() error {
	seen := make(map[string]bool)
	for i, s := range wf.Steps {
		if seen[s.Name] {
			return fmt.Errorf("step %d: duplicate name %q", i+1, s.Name)
		}
		seen[s.Name] = true
		for _, k := range s.Retry.RetryOn {
			if !faults.Known(k) {
				return fmt.Errorf("step %q: unknown error kind %q in retry_on", s.Name, k)
			}
		}
		if s.Retry.Cap > 0 && s.Retry.Base > s.Retry.Cap {
			return fmt.Errorf("step %q: retry base exceeds cap", s.Name)
		}
	}
	return nil
}

// toJSONValue round-trips a YAML value through JSON so the validator sees
// JSON types (json.Number, map[string]interface{}).
func toJSONValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("workflow is not representable as JSON: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
