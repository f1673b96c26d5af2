package expressions

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jmespath/go-jmespath"
)

// Evaluator evaluates JMESPath expressions with a compiled expression cache
type Evaluator struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*jmespath.JMESPath),
	}
}

// Compile validates an expression and caches it
func (e *Evaluator) Compile(expression string) error {
	_, err := e.getOrCompile(expression)
	return err
}

func (e *Evaluator) Evaluate(expression string, data any) (any, error) {
	compiled, err := e.getOrCompile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	result, err := compiled.Search(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}

	return result, nil
}

// EvaluateString returns "" for a missing value. Numbers are formatted without exponent.
func (e *Evaluator) EvaluateString(expression string, data any) (string, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil || result == nil {
		return "", err
	}

	switch v := result.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// EvaluateOptionalString is EvaluateString returning nil for missing or empty values
func (e *Evaluator) EvaluateOptionalString(expression string, data any) (*string, error) {
	if expression == "" {
		return nil, nil
	}
	s, err := e.EvaluateString(expression, data)
	if err != nil || s == "" {
		return nil, err
	}
	return &s, nil
}

// EvaluateOptionalInt returns nil when the value is missing
func (e *Evaluator) EvaluateOptionalInt(expression string, data any) (*int, error) {
	if expression == "" {
		return nil, nil
	}
	result, err := e.Evaluate(expression, data)
	if err != nil || result == nil {
		return nil, err
	}

	switch v := result.(type) {
	case float64:
		n := int(v)
		return &n, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("expression %q: %q is not an integer", expression, v)
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("expression %q: unexpected type %T", expression, result)
	}
}

// EvaluateOptionalFloat returns nil when the value is missing
func (e *Evaluator) EvaluateOptionalFloat(expression string, data any) (*float64, error) {
	if expression == "" {
		return nil, nil
	}
	result, err := e.Evaluate(expression, data)
	if err != nil || result == nil {
		return nil, err
	}

	switch v := result.(type) {
	case float64:
		return &v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("expression %q: %q is not a number", expression, v)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("expression %q: unexpected type %T", expression, result)
	}
}

func (e *Evaluator) EvaluateBool(expression string, data any) (bool, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil || result == nil {
		return false, err
	}

	switch v := result.(type) {
	case bool:
		return v, nil
	case string:
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return v != "", nil
		}
		return b, nil
	case float64:
		return v != 0, nil
	case []any:
		return len(v) > 0, nil
	case map[string]any:
		return len(v) > 0, nil
	default:
		return true, nil
	}
}

// EvaluateTime accepts RFC3339 strings or unix seconds
func (e *Evaluator) EvaluateTime(expression string, data any) (time.Time, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return time.Time{}, err
	}

	switch v := result.(type) {
	case nil:
		return time.Time{}, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("expression %q: %w", expression, err)
		}
		return t.UTC(), nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("expression %q: unexpected type %T", expression, result)
	}
}

// EvaluateSlice returns nil for a missing value
func (e *Evaluator) EvaluateSlice(expression string, data any) ([]any, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil || result == nil {
		return nil, err
	}

	slice, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("expression %q did not return an array", expression)
	}
	return slice, nil
}

func (e *Evaluator) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	compiled, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if compiled, ok := e.cache[expression]; ok {
		return compiled, nil
	}

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}
	e.cache[expression] = compiled
	return compiled, nil
}
