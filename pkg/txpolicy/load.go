package txpolicy

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/client"
	"github.com/Layr-Labs/fireblocks-api-go/pkg/types"
	"go.uber.org/zap"
)

// PolicySource is the part of the API the engine is loaded from
type PolicySource interface {
	GetActivePolicy(ctx context.Context) (*types.ActivePolicy, error)
	GetUserGroups(ctx context.Context) ([]types.UserGroup, error)
}

var _ PolicySource = (*client.Client)(nil)

// Load fetches the active policy and user groups once and builds an Engine
// from them. Later policy edits need a restart to take effect.
func Load(ctx context.Context, src PolicySource, rates RateSource, logger *zap.Logger) (*Engine, error) {
	if src == nil {
		return nil, fmt.Errorf("policy source is required")
	}
	groups, err := src.GetUserGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user groups: %w", err)
	}
	policy, err := src.GetActivePolicy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active policy: %w", err)
	}
	return NewEngine(&EngineConfig{
		Policy: policy,
		Groups: types.ActiveGroupMembers(groups),
		Rates:  rates,
		Logger: logger,
	})
}
