package policy

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/cloudspectre/internal/models"
	"github.com/ppiankov/cloudspectre/pkg/config"
)

// Options configures an Evaluator.
type Options struct {
	PersistentTags    []string
	UntaggedThreshold time.Duration
	StoppedThreshold  time.Duration
	SkipPattern       *regexp.Regexp
}

// Evaluator runs the ordered instance rules and the volume rule.
type Evaluator struct {
	protector *Protector
	rules     []Rule
}

// NewEvaluator creates an evaluator with rules ttl, stop, long-stopped, untagged.
func NewEvaluator(opts Options) *Evaluator {
	return &Evaluator{
		protector: NewProtector(opts.PersistentTags),
		rules: []Rule{
			ttlRule{},
			stopRule{},
			longStoppedRule{threshold: opts.StoppedThreshold},
			untaggedRule{threshold: opts.UntaggedThreshold, skip: opts.SkipPattern},
		},
	}
}

// FromConfig builds an evaluator from the run configuration.
func FromConfig(cfg *config.Config) (*Evaluator, error) {
	skip, err := cfg.SkipPattern()
	if err != nil {
		return nil, err
	}
	e := NewEvaluator(Options{
		PersistentTags:    cfg.PersistentTags,
		UntaggedThreshold: cfg.UntaggedThreshold,
		StoppedThreshold:  cfg.StoppedThreshold,
		SkipPattern:       skip,
	})
	slog.Debug("policy configured",
		slog.String("rules", strings.Join(e.ruleNames(), ",")),
		slog.String("untagged_threshold", cfg.UntaggedThreshold.String()),
		slog.String("stopped_threshold", cfg.StoppedThreshold.String()),
		slog.Int("persistent_tags", len(cfg.PersistentTags)),
	)
	return e, nil
}

// Protector returns the protection evaluator shared with the rules.
func (e *Evaluator) Protector() *Protector {
	return e.protector
}

// ruleNames returns the rule names in evaluation order.
func (e *Evaluator) ruleNames() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}

// Evaluate returns the action of the first rule that fires. Protection is
// checked by the caller.
func (e *Evaluator) Evaluate(inst models.Instance, now time.Time) (models.CleanupAction, bool) {
	for _, rule := range e.rules {
		if action, ok := rule.Evaluate(inst, now); ok {
			slog.Debug("rule matched",
				slog.String("instance_id", inst.ID),
				slog.String("rule", rule.Name()),
				slog.String("action", string(action.Action)),
			)
			return action, true
		}
	}
	return models.CleanupAction{}, false
}
