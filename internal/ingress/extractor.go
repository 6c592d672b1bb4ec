package ingress

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"finpasser/internal/config"
	"finpasser/internal/constants"
	"finpasser/pkg/errors"
)

// FileInfo is what an extractor may look at. The payload itself is never
// inspected.
type FileInfo struct {
	Filename    string
	Size        int64
	ContentType string
}

type Extractor interface {
	Extract(ctx context.Context, info FileInfo) (string, error)
}

func NewExtractor(cfg config.BusinessIDConfig) (Extractor, error) {
	switch strings.ToLower(cfg.Extractor) {
	case "", "regex":
		pattern := cfg.Pattern
		if pattern == "" {
			pattern = constants.DefaultBusinessIDPattern
		}
		return NewRegexExtractor(pattern)
	case "cel":
		return NewCELExtractor(cfg.Expression)
	default:
		return nil, fmt.Errorf("unknown business id extractor: %s", cfg.Extractor)
	}
}

func baseName(filename string) string {
	return path.Base(strings.ReplaceAll(filename, `\`, "/"))
}

func missingBusinessID(filename string) *errors.Error {
	return errors.ErrValidation.
		WithMessage("could not extract business id from filename").
		WithDetail("filename", filename)
}

// RegexExtractor returns the first capture group of pattern matched against
// the base filename.
type RegexExtractor struct {
	re *regexp.Regexp
}

func NewRegexExtractor(pattern string) (*RegexExtractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid business id pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("business id pattern %q has no capture group", pattern)
	}
	return &RegexExtractor{re: re}, nil
}

func (e *RegexExtractor) Extract(_ context.Context, info FileInfo) (string, error) {
	m := e.re.FindStringSubmatch(baseName(info.Filename))
	if len(m) < 2 || strings.TrimSpace(m[1]) == "" {
		return "", missingBusinessID(info.Filename)
	}
	return m[1], nil
}

// CELExtractor evaluates a string-typed CEL expression over filename, size
// and content_type. The expression is compiled once.
type CELExtractor struct {
	program cel.Program
}

func NewCELExtractor(expression string) (*CELExtractor, error) {
	env, err := cel.NewEnv(
		cel.Variable("filename", cel.StringType),
		cel.Variable("size", cel.IntType),
		cel.Variable("content_type", cel.StringType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	if ast.OutputType() != cel.StringType {
		return nil, fmt.Errorf("business id expression must return string, got %v", ast.OutputType())
	}

	program, err := env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return &CELExtractor{program: program}, nil
}

func (e *CELExtractor) Extract(ctx context.Context, info FileInfo) (string, error) {
	vars := map[string]interface{}{
		"filename":     baseName(info.Filename),
		"size":         info.Size,
		"content_type": info.ContentType,
	}

	result, _, err := e.program.ContextEval(ctx, vars)
	if err != nil {
		return "", missingBusinessID(info.Filename).WithCause(err)
	}

	id, ok := result.Value().(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", missingBusinessID(info.Filename)
	}
	return id, nil
}
