package types

import (
	"encoding/json"
	"fmt"
)

// TransactionOperation is the kind of transaction being created
type TransactionOperation string

const (
	OperationTransfer           TransactionOperation = "TRANSFER"
	OperationRaw                TransactionOperation = "RAW"
	OperationContractCall       TransactionOperation = "CONTRACT_CALL"
	OperationMint               TransactionOperation = "MINT"
	OperationBurn               TransactionOperation = "BURN"
	OperationSupplyToCompound   TransactionOperation = "SUPPLY_TO_COMPOUND"
	OperationRedeemFromCompound TransactionOperation = "REDEEM_FROM_COMPOUND"
)

var transactionOperations = map[TransactionOperation]struct{}{
	OperationTransfer:           {},
	OperationRaw:                {},
	OperationContractCall:       {},
	OperationMint:               {},
	OperationBurn:               {},
	OperationSupplyToCompound:   {},
	OperationRedeemFromCompound: {},
}

func (o TransactionOperation) IsValid() bool {
	_, ok := transactionOperations[o]
	return ok
}

func (o TransactionOperation) MarshalJSON() ([]byte, error) {
	if !o.IsValid() {
		return nil, fmt.Errorf("invalid transaction operation: %q", string(o))
	}
	return json.Marshal(string(o))
}

func (o *TransactionOperation) UnmarshalJSON(data []byte) error {
	s, err := unmarshalEnum(data, "transaction operation", func(s string) bool {
		return TransactionOperation(s).IsValid()
	})
	if err != nil {
		return err
	}
	*o = TransactionOperation(s)
	return nil
}

// PeerType identifies the kind of source or destination of a transfer
type PeerType string

const (
	PeerVaultAccount      PeerType = "VAULT_ACCOUNT"
	PeerExchangeAccount   PeerType = "EXCHANGE_ACCOUNT"
	PeerInternalWallet    PeerType = "INTERNAL_WALLET"
	PeerExternalWallet    PeerType = "EXTERNAL_WALLET"
	PeerOneTimeAddress    PeerType = "ONE_TIME_ADDRESS"
	PeerNetworkConnection PeerType = "NETWORK_CONNECTION"
	PeerFiatAccount       PeerType = "FIAT_ACCOUNT"
	PeerCompound          PeerType = "COMPOUND"
)

var peerTypes = map[PeerType]struct{}{
	PeerVaultAccount:      {},
	PeerExchangeAccount:   {},
	PeerInternalWallet:    {},
	PeerExternalWallet:    {},
	PeerOneTimeAddress:    {},
	PeerNetworkConnection: {},
	PeerFiatAccount:       {},
	PeerCompound:          {},
}

func (p PeerType) IsValid() bool {
	_, ok := peerTypes[p]
	return ok
}

func (p PeerType) MarshalJSON() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid peer type: %q", string(p))
	}
	return json.Marshal(string(p))
}

func (p *PeerType) UnmarshalJSON(data []byte) error {
	s, err := unmarshalEnum(data, "peer type", func(s string) bool {
		return PeerType(s).IsValid()
	})
	if err != nil {
		return err
	}
	*p = PeerType(s)
	return nil
}

// TransactionStatus is the lifecycle state of a transaction
type TransactionStatus string

const (
	StatusSubmitted                     TransactionStatus = "SUBMITTED"
	StatusQueued                        TransactionStatus = "QUEUED"
	StatusPendingSignature              TransactionStatus = "PENDING_SIGNATURE"
	StatusPendingAuthorization          TransactionStatus = "PENDING_AUTHORIZATION"
	StatusPending3rdPartyManualApproval TransactionStatus = "PENDING_3RD_PARTY_MANUAL_APPROVAL"
	StatusPending3rdParty               TransactionStatus = "PENDING_3RD_PARTY"
	StatusPending                       TransactionStatus = "PENDING"
	StatusBroadcasting                  TransactionStatus = "BROADCASTING"
	StatusConfirming                    TransactionStatus = "CONFIRMING"
	StatusConfirmed                     TransactionStatus = "CONFIRMED"
	StatusCompleted                     TransactionStatus = "COMPLETED"
	StatusPendingAMLScreening           TransactionStatus = "PENDING_AML_SCREENING"
	StatusPartiallyCompleted            TransactionStatus = "PARTIALLY_COMPLETED"
	StatusCancelling                    TransactionStatus = "CANCELLING"
	StatusCancelled                     TransactionStatus = "CANCELLED"
	StatusRejected                      TransactionStatus = "REJECTED"
	StatusFailed                        TransactionStatus = "FAILED"
	StatusTimeout                       TransactionStatus = "TIMEOUT"
	StatusBlocked                       TransactionStatus = "BLOCKED"
)

var transactionStatuses = map[TransactionStatus]struct{}{
	StatusSubmitted:                     {},
	StatusQueued:                        {},
	StatusPendingSignature:              {},
	StatusPendingAuthorization:          {},
	StatusPending3rdPartyManualApproval: {},
	StatusPending3rdParty:               {},
	StatusPending:                       {},
	StatusBroadcasting:                  {},
	StatusConfirming:                    {},
	StatusConfirmed:                     {},
	StatusCompleted:                     {},
	StatusPendingAMLScreening:           {},
	StatusPartiallyCompleted:            {},
	StatusCancelling:                    {},
	StatusCancelled:                     {},
	StatusRejected:                      {},
	StatusFailed:                        {},
	StatusTimeout:                       {},
	StatusBlocked:                       {},
}

func (s TransactionStatus) IsValid() bool {
	_, ok := transactionStatuses[s]
	return ok
}

// IsFinal reports whether no further status change is expected
func (s TransactionStatus) IsFinal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected, StatusFailed, StatusTimeout, StatusBlocked:
		return true
	default:
		return false
	}
}

func (s TransactionStatus) MarshalJSON() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid transaction status: %q", string(s))
	}
	return json.Marshal(string(s))
}

func (s *TransactionStatus) UnmarshalJSON(data []byte) error {
	v, err := unmarshalEnum(data, "transaction status", func(v string) bool {
		return TransactionStatus(v).IsValid()
	})
	if err != nil {
		return err
	}
	*s = TransactionStatus(v)
	return nil
}

func unmarshalEnum(data []byte, kind string, valid func(string) bool) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("%s must be a string: %w", kind, err)
	}
	if !valid(s) {
		return "", fmt.Errorf("unknown %s: %q", kind, s)
	}
	return s, nil
}
