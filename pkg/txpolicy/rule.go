package txpolicy

import (
	"fmt"
	"slices"

	"github.com/Layr-Labs/fireblocks-api-go/pkg/types"
)

// Rule actions. ALLOW and 2-TIER let the transaction through.
const (
	ActionAllow   = "ALLOW"
	ActionBlock   = "BLOCK"
	ActionTwoTier = "2-TIER"
)

const (
	ScopeSingleTx  = "SINGLE_TX"
	ScopeTimeframe = "TIMEFRAME"
)

const (
	CurrencyUSD    = "USD"
	CurrencyEUR    = "EUR"
	CurrencyNative = "NATIVE"
)

const (
	DstAddressAny         = "*"
	DstAddressWhitelisted = "WHITELISTED"
	DstAddressOneTime     = "ONE_TIME"
)

// Operations a policy rule can name
const (
	OperationTransfer     = "TRANSFER"
	OperationContractCall = "CONTRACT_CALL"
	OperationApprove      = "APPROVE"
	OperationTypedMessage = "TYPED_MESSAGE"
	OperationRaw          = "RAW"
	OperationMint         = "MINT"
	OperationBurn         = "BURN"
	OperationSupply       = "SUPPLY"
	OperationRedeem       = "REDEEM"
	OperationStake        = "STAKE"
)

var operations = map[string]struct{}{
	OperationTransfer:     {},
	OperationContractCall: {},
	OperationApprove:      {},
	OperationTypedMessage: {},
	OperationRaw:          {},
	OperationMint:         {},
	OperationBurn:         {},
	OperationSupply:       {},
	OperationRedeem:       {},
	OperationStake:        {},
}

// IsKnownOperation reports whether op can be evaluated against a policy
func IsKnownOperation(op string) bool {
	_, ok := operations[op]
	return ok
}

const (
	acrossAllMatches   = "ACROSS_ALL_MATCHES"
	peerOneTimeAddress = "ONE_TIME_ADDRESS"
)

// peer is one [id, type, subType] tuple; empty fields match anything
type peer struct {
	id      string
	typ     string
	subType string
}

func fieldMatches(want, got string) bool {
	return want == "" || want == types.Wildcard || want == got
}

func (p peer) matches(id, typ, subType string) bool {
	return fieldMatches(p.id, id) && fieldMatches(p.typ, typ) && fieldMatches(p.subType, subType)
}

type peerSet struct {
	any   bool
	peers []peer
}

// parsePeers reads the ids tuples of a src or dst block. Tuples that are
// neither [id, type] nor [id, type, subType] are skipped.
func parsePeers(p *types.PolicyPeers) peerSet {
	if p == nil {
		return peerSet{any: true}
	}
	var set peerSet
	for _, ids := range p.IDs {
		switch len(ids) {
		case 1:
			if ids[0] == types.Wildcard {
				return peerSet{any: true}
			}
		case 2:
			set.peers = append(set.peers, peer{id: ids[0], typ: ids[1]})
		case 3:
			set.peers = append(set.peers, peer{id: ids[0], typ: ids[1], subType: ids[2]})
		}
	}
	return set
}

func (s peerSet) matches(id, typ, subType string) bool {
	if s.any {
		return true
	}
	for _, p := range s.peers {
		if p.matches(id, typ, subType) {
			return true
		}
	}
	return false
}

type rule struct {
	types.PolicyRule
	index     int
	src       peerSet
	dst       peerSet
	anyone    bool
	users     []string
	userGroup []string
}

func compileRule(index int, r types.PolicyRule) *rule {
	c := &rule{PolicyRule: r, index: index, src: parsePeers(r.Src), dst: parsePeers(r.Dst)}
	if r.Operators == nil || r.Operators.Wildcard == types.Wildcard {
		c.anyone = true
	} else {
		c.users = r.Operators.Users
		c.userGroup = r.Operators.UsersGroups
	}
	return c
}

func (r *rule) allows() bool {
	return r.Action == ActionAllow || r.Action == ActionTwoTier
}

func (r *rule) matchesAsset(tx *Transaction) bool {
	return r.Asset == types.Wildcard || r.Asset == tx.Asset
}

// matchesOperation also decides which history entries a TIMEFRAME rule sums
func (r *rule) matchesOperation(op string) bool {
	if r.TransactionType == op || r.TransactionType == types.Wildcard {
		return true
	}
	if r.TransactionType == OperationContractCall {
		return (r.ApplyForApprove && op == OperationApprove) ||
			(r.ApplyForTypedMessage && op == OperationTypedMessage)
	}
	return false
}

func (r *rule) matchesSource(tx *Transaction) bool {
	return r.src.matches(tx.SrcID, tx.SrcType, tx.SrcSubType)
}

func (r *rule) matchesDestination(tx *Transaction) bool {
	if r.DstAddressType == DstAddressOneTime && tx.DstType == peerOneTimeAddress {
		return true
	}
	return r.dst.matches(tx.DstID, tx.DstType, tx.DstSubType)
}

func (r *rule) matchesDstAddressType(tx *Transaction) (bool, error) {
	switch r.DstAddressType {
	case DstAddressAny:
		return true, nil
	case DstAddressOneTime:
		return tx.DstType == peerOneTimeAddress, nil
	case DstAddressWhitelisted:
		return tx.DstType != peerOneTimeAddress, nil
	default:
		return false, fmt.Errorf("rule %d: unsupported dstAddressType %q", r.index, r.DstAddressType)
	}
}

// matchesInitiator checks the rule's operators. Callback requests carry no
// initiator, in which case every rule matches.
func (r *rule) matchesInitiator(tx *Transaction, groups map[string][]string) bool {
	if r.anyone || tx.Initiator == "" {
		return true
	}
	if r.users != nil && !slices.Contains(r.users, tx.Initiator) {
		return false
	}
	if r.userGroup == nil {
		return true
	}
	for _, g := range r.userGroup {
		if slices.Contains(groups[g], tx.Initiator) {
			return true
		}
	}
	return false
}

func (r *rule) aggregation() types.AmountAggregation {
	if r.AmountAggregation == nil {
		return types.AmountAggregation{
			Operators:        acrossAllMatches,
			SrcTransferPeers: acrossAllMatches,
			DstTransferPeers: acrossAllMatches,
		}
	}
	return *r.AmountAggregation
}
