package types

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Wildcard matches any value in a policy rule field
const Wildcard = "*"

// ActivePolicy is the workspace's published transaction authorization policy
type ActivePolicy struct {
	Policy     *PolicyRules `json:"policy"`
	Checksum   string       `json:"checksum,omitempty"`
	LastUpdate int64        `json:"lastUpdate,omitempty"`
}

type PolicyRules struct {
	Rules []PolicyRule `json:"rules"`
}

// PolicyRule is one rule of the transaction authorization policy. Rules are
// evaluated in order and the first match decides.
type PolicyRule struct {
	Type                 string             `json:"type,omitempty"`
	Action               string             `json:"action"`
	Asset                string             `json:"asset"`
	AmountCurrency       string             `json:"amountCurrency"`
	AmountScope          string             `json:"amountScope"`
	Amount               decimal.Decimal    `json:"amount"`
	PeriodSec            int64              `json:"periodSec"`
	TransactionType      string             `json:"transactionType"`
	Operators            *PolicyOperators   `json:"operators,omitempty"`
	Src                  *PolicyPeers       `json:"src,omitempty"`
	Dst                  *PolicyPeers       `json:"dst,omitempty"`
	DstAddressType       string             `json:"dstAddressType"`
	AmountAggregation    *AmountAggregation `json:"amountAggregation,omitempty"`
	ApplyForApprove      bool               `json:"applyForApprove,omitempty"`
	ApplyForTypedMessage bool               `json:"applyForTypedMessage,omitempty"`
	ExternalDescriptor   string             `json:"externalDescriptor,omitempty"`

	// Kept verbatim; approver sets are not evaluated locally
	AuthorizationGroups json.RawMessage `json:"authorizationGroups,omitempty"`
}

// PolicyOperators names who may initiate a matching transaction.
// {"wildcard":"*"} means anyone.
type PolicyOperators struct {
	Wildcard    string   `json:"wildcard,omitempty"`
	Users       []string `json:"users,omitempty"`
	UsersGroups []string `json:"usersGroups,omitempty"`
}

// PolicyPeers lists transfer peers as [id, type] or [id, type, subType]
// tuples. A single ["*"] entry matches every peer.
type PolicyPeers struct {
	IDs [][]string `json:"ids"`
}

// AmountAggregation says which history entries a TIMEFRAME rule sums over.
// ACROSS_ALL_MATCHES aggregates regardless of that dimension; anything else
// restricts the sum to the current transaction's value.
type AmountAggregation struct {
	Operators        string `json:"operators"`
	SrcTransferPeers string `json:"srcTransferPeers"`
	DstTransferPeers string `json:"dstTransferPeers"`
}

// UserGroup is a named set of workspace users
type UserGroup struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	MemberIDs []string `json:"memberIds"`
}

// UserGroups is a user group listing; every entry must carry an ID
type UserGroups []UserGroup

// UserGroupStatusActive marks groups that take part in policy evaluation
const UserGroupStatusActive = "ACTIVE"

var (
	_ Validator = (*ActivePolicy)(nil)
	_ Validator = (*UserGroup)(nil)
	_ Validator = (*UserGroups)(nil)
)

func (p *ActivePolicy) Validate() error {
	if p.Policy == nil {
		return fmt.Errorf("policy is required")
	}
	for i := range p.Policy.Rules {
		if p.Policy.Rules[i].Action == "" {
			return fmt.Errorf("rule %d: action is required", i)
		}
	}
	return nil
}

func (g *UserGroup) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("user group id is required")
	}
	return nil
}

func (gs *UserGroups) Validate() error {
	for i := range *gs {
		if err := (*gs)[i].Validate(); err != nil {
			return fmt.Errorf("group %d: %w", i, err)
		}
	}
	return nil
}

// ActiveGroupMembers maps each ACTIVE group's ID to its member IDs
func ActiveGroupMembers(groups []UserGroup) map[string][]string {
	out := make(map[string][]string, len(groups))
	for _, g := range groups {
		if g.Status == UserGroupStatusActive {
			out[g.ID] = g.MemberIDs
		}
	}
	return out
}
