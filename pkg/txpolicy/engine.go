package txpolicy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Transaction is the view of a pending transaction the engine evaluates.
// Amount is in the asset's native units, Volume in USD.
type Transaction struct {
	ID        string
	Initiator string
	Operation string
	Asset     string
	Amount    decimal.Decimal
	Volume    decimal.Decimal

	SrcType    string
	SrcID      string
	SrcSubType string

	DstType    string
	DstID      string
	DstSubType string
	DstAddress string

	Timestamp time.Time
}

// Result is the outcome of a policy check. Rule is nil when no rule matched,
// which refuses the transaction.
type Result struct {
	Allow     bool
	Rule      *types.PolicyRule
	RuleIndex int
}

// EngineConfig holds the configuration for the policy engine
type EngineConfig struct {
	Policy *types.ActivePolicy
	// Groups maps user group IDs to member user IDs
	Groups map[string][]string
	// Rates converts USD volume for EUR denominated rules. Defaults to a
	// fixed rate of 1.
	Rates  RateSource
	Logger *zap.Logger
}

// Engine evaluates transactions against a policy snapshot. Allowed
// transactions are remembered for TIMEFRAME rules; history older than the
// longest rule period is dropped. Safe for concurrent use.
type Engine struct {
	rules     []*rule
	groups    map[string][]string
	rates     RateSource
	needsRate bool
	maxPeriod int64
	logger    *zap.Logger

	mu      sync.Mutex
	history []Transaction
}

func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("policy is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	e := &Engine{
		groups: cfg.Groups,
		rates:  cfg.Rates,
		logger: cfg.Logger,
	}
	if e.groups == nil {
		e.groups = map[string][]string{}
	}
	if e.rates == nil {
		e.rates = FixedRate(decimal.NewFromInt(1))
	}

	for i, r := range cfg.Policy.Policy.Rules {
		c := compileRule(i, r)
		if c.AmountCurrency == CurrencyEUR {
			e.needsRate = true
		}
		if c.AmountScope == ScopeTimeframe && c.PeriodSec > e.maxPeriod {
			e.maxPeriod = c.PeriodSec
		}
		e.rules = append(e.rules, c)
	}

	e.logger.Sugar().Infow("Loaded transaction policy",
		"rules", len(e.rules),
		"groups", len(e.groups),
		"checksum", cfg.Policy.Checksum,
	)
	return e, nil
}

// Check finds the first rule matching tx. The transaction is allowed only
// when that rule's action is ALLOW or 2-TIER.
func (e *Engine) Check(ctx context.Context, tx *Transaction) (*Result, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction cannot be nil")
	}

	usdToEUR := decimal.NewFromInt(1)
	if e.needsRate {
		usdToEUR = e.rates.USDToEUR(ctx)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	result := &Result{RuleIndex: -1}
	for _, r := range e.rules {
		ok, err := e.matches(tx, r, usdToEUR)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		result.Rule = &r.PolicyRule
		result.RuleIndex = r.index
		result.Allow = r.allows()
		break
	}

	if result.Allow {
		e.history = append(e.history, *tx)
		e.prune(tx.Timestamp.Unix())
	}
	return result, nil
}

func (e *Engine) matches(tx *Transaction, r *rule, usdToEUR decimal.Decimal) (bool, error) {
	if !r.matchesAsset(tx) || !r.matchesOperation(tx.Operation) ||
		!r.matchesInitiator(tx, e.groups) || !r.matchesSource(tx) || !r.matchesDestination(tx) {
		return false, nil
	}
	ok, err := r.matchesDstAddressType(tx)
	if err != nil || !ok {
		return false, err
	}
	return e.matchesValue(tx, r, usdToEUR)
}

// matchesValue compares the rule amount with the transaction value, or for
// TIMEFRAME rules with the value summed over the rule period including tx.
func (e *Engine) matchesValue(tx *Transaction, r *rule, usdToEUR decimal.Decimal) (bool, error) {
	var volume, amount decimal.Decimal
	switch r.AmountScope {
	case ScopeSingleTx:
		volume, amount = tx.Volume, tx.Amount
	case ScopeTimeframe:
		volume, amount = e.aggregate(tx, r)
	default:
		return false, fmt.Errorf("rule %d: unsupported amountScope %q", r.index, r.AmountScope)
	}

	switch r.AmountCurrency {
	case CurrencyUSD:
		return volume.GreaterThanOrEqual(r.Amount), nil
	case CurrencyEUR:
		return volume.Mul(usdToEUR).GreaterThanOrEqual(r.Amount), nil
	case CurrencyNative:
		return amount.GreaterThanOrEqual(r.Amount), nil
	default:
		return false, fmt.Errorf("rule %d: unsupported amountCurrency %q", r.index, r.AmountCurrency)
	}
}

// aggregate sums allowed history within [tx-periodSec, tx] along the
// dimensions the rule does not aggregate across, then adds tx itself.
// Caller holds e.mu.
func (e *Engine) aggregate(tx *Transaction, r *rule) (volume, amount decimal.Decimal) {
	agg := r.aggregation()
	end := tx.Timestamp.Unix()
	start := end - r.PeriodSec

	for i := range e.history {
		h := &e.history[i]
		if agg.Operators != acrossAllMatches && h.Initiator != tx.Initiator {
			continue
		}
		if agg.SrcTransferPeers != acrossAllMatches && h.SrcID != tx.SrcID {
			continue
		}
		if agg.DstTransferPeers != acrossAllMatches && h.DstID != tx.DstID {
			continue
		}
		if r.Asset != types.Wildcard && h.Asset != r.Asset {
			continue
		}
		if !r.matchesOperation(h.Operation) {
			continue
		}
		if ts := h.Timestamp.Unix(); ts < start || ts > end {
			continue
		}
		volume = volume.Add(h.Volume)
		amount = amount.Add(h.Amount)
	}
	return volume.Add(tx.Volume), amount.Add(tx.Amount)
}

// prune drops history no TIMEFRAME rule can reach any more. Caller holds e.mu.
func (e *Engine) prune(now int64) {
	cutoff := now - e.maxPeriod
	kept := e.history[:0]
	for _, h := range e.history {
		if h.Timestamp.Unix() >= cutoff {
			kept = append(kept, h)
		}
	}
	e.history = kept
}

// HistoryLen reports how many allowed transactions are remembered
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}
