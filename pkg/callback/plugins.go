package callback

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/txpolicy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Plugin names accepted in the PLUGINS setting
const (
	PluginExtraSignature     = "extra_signature"
	PluginTxIDValidation     = "txid_validation"
	PluginTxPolicyValidation = "tx_policy_validation"
)

// Plugin inspects a transaction sign request. It returns false to refuse the
// transaction; an error means the plugin could not reach a decision.
type Plugin interface {
	Name() string
	Process(ctx context.Context, req *TxSignRequest) (bool, error)
}

// PluginError reports a plugin that failed to decide
type PluginError struct {
	Plugin string
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s failed: %v", e.Plugin, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// Manager runs plugins in order and combines their verdicts
type Manager struct {
	plugins []Plugin
	logger  *zap.Logger
}

func NewManager(logger *zap.Logger, plugins ...Plugin) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{plugins: plugins, logger: logger}
}

// Plugins returns the loaded plugin names in evaluation order
func (m *Manager) Plugins() []string {
	names := make([]string, 0, len(m.plugins))
	for _, p := range m.plugins {
		names = append(names, p.Name())
	}
	return names
}

// Decide returns APPROVE when every plugin approves and REJECT as soon as one
// refuses. Evaluation stops at the first refusal or error.
//
// With no plugin loaded it answers IGNORE rather than APPROVE, so a server
// started without PLUGINS never signs off on anything and the workspace's own
// approval policy decides.
func (m *Manager) Decide(ctx context.Context, req *TxSignRequest) (Action, error) {
	if len(m.plugins) == 0 {
		return ActionIgnore, nil
	}

	for _, p := range m.plugins {
		ok, err := p.Process(ctx, req)
		if err != nil {
			return "", &PluginError{Plugin: p.Name(), Err: err}
		}
		if !ok {
			m.logger.Sugar().Infow("Plugin rejected transaction",
				"plugin", p.Name(),
				"tx_id", req.TxID,
				"request_id", req.RequestID,
			)
			return ActionReject, nil
		}
	}
	return ActionApprove, nil
}

// ExtraSignaturePlugin approves requests whose extraParameters.message carries
// a valid RSA PKCS#1 v1.5 SHA-256 signature in extraParameters.extraSignature.
type ExtraSignaturePlugin struct {
	publicKey *rsa.PublicKey
	logger    *zap.Logger
}

func NewExtraSignaturePlugin(publicKey *rsa.PublicKey, logger *zap.Logger) (*ExtraSignaturePlugin, error) {
	if publicKey == nil {
		return nil, fmt.Errorf("extra signature public key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtraSignaturePlugin{publicKey: publicKey, logger: logger}, nil
}

func (p *ExtraSignaturePlugin) Name() string { return PluginExtraSignature }

// Process fails, rather than refusing, when the message or signature is
// missing or the signature does not verify.
func (p *ExtraSignaturePlugin) Process(_ context.Context, req *TxSignRequest) (bool, error) {
	if req.ExtraParameters == nil || req.ExtraParameters.Message == "" || req.ExtraParameters.ExtraSignature == "" {
		return false, fmt.Errorf("missing extra signature/message")
	}

	sig, err := base64.StdEncoding.DecodeString(req.ExtraParameters.ExtraSignature)
	if err != nil {
		return false, fmt.Errorf("extra signature is not valid base64: %w", err)
	}

	digest := sha256.Sum256([]byte(req.ExtraParameters.Message))
	if err := rsa.VerifyPKCS1v15(p.publicKey, crypto.SHA256, digest[:], sig); err != nil {
		return false, fmt.Errorf("could not verify the extra signature: %w", err)
	}

	p.logger.Sugar().Infow("Extra signature verified", "tx_id", req.TxID)
	return true, nil
}

// TxIDStore answers whether a transaction ID was registered ahead of time
type TxIDStore interface {
	Contains(ctx context.Context, txID string) (bool, error)
}

// TxIDPlugin approves only transactions whose ID is present in a TxIDStore
type TxIDPlugin struct {
	store  TxIDStore
	logger *zap.Logger
}

func NewTxIDPlugin(store TxIDStore, logger *zap.Logger) (*TxIDPlugin, error) {
	if store == nil {
		return nil, fmt.Errorf("txid_validation plugin requires a transaction ID store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TxIDPlugin{store: store, logger: logger}, nil
}

func (p *TxIDPlugin) Name() string { return PluginTxIDValidation }

func (p *TxIDPlugin) Process(ctx context.Context, req *TxSignRequest) (bool, error) {
	if req.TxID == "" {
		return false, fmt.Errorf("transaction ID (txId) is missing")
	}

	exists, err := p.store.Contains(ctx, req.TxID)
	if err != nil {
		return false, fmt.Errorf("failed to look up transaction ID: %w", err)
	}
	p.logger.Sugar().Infow("Transaction ID validation result", "tx_id", req.TxID, "exists", exists)
	return exists, nil
}

// TxPolicyPlugin approves the transactions the workspace's transaction
// authorization policy allows, evaluated locally against a snapshot.
type TxPolicyPlugin struct {
	engine *txpolicy.Engine
	now    func() time.Time
	logger *zap.Logger
}

func NewTxPolicyPlugin(engine *txpolicy.Engine, logger *zap.Logger) (*TxPolicyPlugin, error) {
	if engine == nil {
		return nil, fmt.Errorf("tx_policy_validation plugin requires a policy engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TxPolicyPlugin{engine: engine, now: time.Now, logger: logger}, nil
}

func (p *TxPolicyPlugin) Name() string { return PluginTxPolicyValidation }

func (p *TxPolicyPlugin) Process(ctx context.Context, req *TxSignRequest) (bool, error) {
	tx, err := policyTransaction(req, p.now())
	if err != nil {
		return false, err
	}

	res, err := p.engine.Check(ctx, tx)
	if err != nil {
		return false, fmt.Errorf("unexpected error evaluating transaction policy: %w", err)
	}
	p.logger.Sugar().Infow("Transaction policy result",
		"tx_id", req.TxID,
		"allow", res.Allow,
		"rule", res.RuleIndex,
		"volume_usd", tx.Volume.String(),
	)
	return res.Allow, nil
}

// policyTransaction prices a sign request for the policy engine. Volume is
// the USD sum over destinations; the destination sub type comes from the
// destination displayed at destAddress.
func policyTransaction(req *TxSignRequest, now time.Time) (*txpolicy.Transaction, error) {
	if !txpolicy.IsKnownOperation(req.Operation) {
		return nil, fmt.Errorf("operation %q is not supported by the transaction policy", req.Operation)
	}
	amount, err := decimal.NewFromString(req.AmountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid amountStr %q: %w", req.AmountStr, err)
	}

	tx := &txpolicy.Transaction{
		ID:         req.TxID,
		Operation:  req.Operation,
		Asset:      req.Asset,
		Amount:     amount,
		SrcType:    req.SourceType,
		SrcID:      req.SourceID,
		DstType:    req.DestType,
		DstID:      req.DestID,
		DstAddress: req.DestAddress,
		Timestamp:  now,
	}
	for _, d := range req.Destinations {
		tx.Volume = tx.Volume.Add(d.AmountUSD)
		if d.DisplayDstAddress == req.DestAddress {
			tx.DstSubType = d.DstSubType
		}
	}
	return tx, nil
}

// PluginDeps are the resources plugins may need when built by name
type PluginDeps struct {
	ExtraSignatureKey *rsa.PublicKey
	TxIDStore         TxIDStore
	TxPolicyEngine    *txpolicy.Engine
	Logger            *zap.Logger
}

// BuildPlugins instantiates the named plugins in order
func BuildPlugins(names []string, deps PluginDeps) ([]Plugin, error) {
	plugins := make([]Plugin, 0, len(names))
	for _, name := range names {
		var (
			p   Plugin
			err error
		)
		switch name {
		case PluginExtraSignature:
			p, err = NewExtraSignaturePlugin(deps.ExtraSignatureKey, deps.Logger)
		case PluginTxIDValidation:
			p, err = NewTxIDPlugin(deps.TxIDStore, deps.Logger)
		case PluginTxPolicyValidation:
			p, err = NewTxPolicyPlugin(deps.TxPolicyEngine, deps.Logger)
		default:
			err = fmt.Errorf("unknown plugin")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load plugin %s: %w", name, err)
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}
