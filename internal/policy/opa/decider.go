package opa

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/ktime/internal/gate"
	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// DecisionQuery is the rule every gate policy must define.
const DecisionQuery = "data.ktime.gate.decision"

//go:embed policy.rego
var embeddedPolicy string

// Decider evaluates gate decisions with a Rego policy
type Decider struct {
	policyDir string
	logger    zerolog.Logger

	mu    sync.RWMutex
	query rego.PreparedEvalQuery
}

// NewDecider creates a Rego decider. An empty policyDir uses the embedded
// policy; otherwise every *.rego file in policyDir is loaded.
func NewDecider(policyDir string, logger zerolog.Logger) (*Decider, error) {
	d := &Decider{
		policyDir: policyDir,
		logger:    logger.With().Str("component", "opa").Logger(),
	}

	if err := d.Reload(); err != nil {
		return nil, err
	}

	source := policyDir
	if source == "" {
		source = "embedded"
	}
	d.logger.Info().Str("policy_source", source).Msg("OPA decider initialized")

	return d, nil
}

// loadModules returns policy sources keyed by file name
func (d *Decider) loadModules() (map[string]string, error) {
	if d.policyDir == "" {
		return map[string]string{"policy.rego": embeddedPolicy}, nil
	}

	files, err := filepath.Glob(filepath.Join(d.policyDir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob policy files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found in %s", d.policyDir)
	}
	sort.Strings(files)

	d.logger.Info().Int("count", len(files)).Msg("Loading policy files")

	modules := make(map[string]string, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
		}
		modules[file] = string(content)
	}
	return modules, nil
}

// Reload re-reads and recompiles the policy
func (d *Decider) Reload() error {
	sources, err := d.loadModules()
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	opts := []func(*rego.Rego){rego.Query(DecisionQuery)}
	for file, content := range sources {
		// Parse first so syntax errors name the file
		module, err := ast.ParseModule(file, content)
		if err != nil {
			return fmt.Errorf("failed to parse policy file %s: %w", file, err)
		}
		d.logger.Debug().Str("file", file).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
		opts = append(opts, rego.Module(file, content))
	}

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to prepare decision query: %w", err)
	}

	d.mu.Lock()
	d.query = query
	d.mu.Unlock()

	return nil
}

// Decide implements gate.Decider.
func (d *Decider) Decide(ctx context.Context, in gate.Input) (gate.Decision, error) {
	startTime := time.Now()

	d.mu.RLock()
	query := d.query
	d.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return "", fmt.Errorf("decision query evaluation failed: %w", err)
	}

	d.logger.Debug().Dur("duration_ms", time.Since(startTime)).Msg("Decision query evaluated")

	if len(results) == 0 {
		return "", fmt.Errorf("no results from decision query")
	}
	if len(results[0].Expressions) == 0 {
		return "", fmt.Errorf("no expressions in decision query result")
	}

	value, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("decision is not a string: %T", results[0].Expressions[0].Value)
	}
	return gate.ParseDecision(value)
}

// buildInput converts a gate snapshot into the policy input document
func buildInput(in gate.Input) map[string]interface{} {
	s := in.Settings.Normalized()

	limits := make(map[string]interface{}, len(s.CustomDailyLimits))
	for day, minutes := range s.CustomDailyLimits {
		limits[day] = minutes
	}

	return map[string]interface{}{
		"weekday":       in.Weekday.String(),
		"usage_minutes": in.UsageMinutes,
		"settings": map[string]interface{}{
			"enabled":             s.Enabled,
			"limit_minutes":       s.LimitMinutes,
			"reminder_minutes":    s.ReminderMinutes,
			"is_custom_days":      s.IsCustomDays,
			"custom_daily_limits": limits,
		},
	}
}
