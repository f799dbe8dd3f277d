// Package analysis turns a farm context into an agronomic assessment using
// either the OpenAI chat completions API or an external Smythos agent, and
// answers farmer chat questions grounded in the same context.
package analysis

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/tbourn/agrisense-backend/internal/config"
	"github.com/tbourn/agrisense-backend/internal/domain"
)

var (
	// ErrUpstream covers transport failures and provider answers that lack
	// the required fields.
	ErrUpstream = errors.New("analysis provider failed")
	// ErrParse is returned when the model output is not the requested JSON.
	ErrParse = errors.New("analysis output could not be parsed")
)

// Provider names.
const (
	ProviderOpenAI  = "openai"
	ProviderSmythos = "smythos"
)

// Analyzer is the contract the aggregator pipeline and chat depend on.
type Analyzer interface {
	// Analyze returns the assessment for fc. userID is a correlator only.
	Analyze(ctx context.Context, fc domain.FarmContext, userID string) (*domain.AnalysisResult, error)
	// Chat answers message. Provider failures degrade to a canned reply.
	Chat(ctx context.Context, fc domain.FarmContext, prices []domain.MarketPrice, message string) (string, error)
	// Name reports the provider used by Analyze.
	Name() string
}

// New builds the Analyzer selected by cfg.Provider. Chat always goes through
// OpenAI; Smythos only replaces Analyze.
func New(cfg config.AIConfig, timeout time.Duration) Analyzer {
	oa := NewOpenAI(cfg, timeout)
	if cfg.Provider == ProviderSmythos {
		return NewSmythos(cfg, oa)
	}
	return oa
}
