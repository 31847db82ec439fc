package callback

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Action is the co-signer's instruction for a pending request
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionIgnore  Action = "IGNORE"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionIgnore:
		return true
	default:
		return false
	}
}

// TxSignRequest is the payload the co-signer sends before signing a
// transaction.
type TxSignRequest struct {
	RequestID       string           `json:"requestId"`
	TxID            string           `json:"txId"`
	Operation       string           `json:"operation"`
	SourceType      string           `json:"sourceType,omitempty"`
	SourceID        string           `json:"sourceId,omitempty"`
	DestType        string           `json:"destType,omitempty"`
	DestID          string           `json:"destId,omitempty"`
	DestAddressType string           `json:"destAddressType,omitempty"`
	DestAddress     string           `json:"destAddress,omitempty"`
	Asset           string           `json:"asset,omitempty"`
	AmountStr       string           `json:"amountStr,omitempty"`
	Note            string           `json:"note,omitempty"`
	ExtraParameters *ExtraParameters `json:"extraParameters,omitempty"`
	Destinations    []TxDestination  `json:"destinations,omitempty"`

	IssuedAt  *int64 `json:"iat,omitempty"`
	ExpiresAt *int64 `json:"exp,omitempty"`
}

// TxDestination is one output of the transaction as priced by the co-signer
type TxDestination struct {
	AmountNative      decimal.Decimal `json:"amountNative"`
	AmountUSD         decimal.Decimal `json:"amountUSD"`
	DstAddressType    string          `json:"dstAddressType,omitempty"`
	DstID             string          `json:"dstId,omitempty"`
	DstType           string          `json:"dstType,omitempty"`
	DstSubType        string          `json:"dstSubType,omitempty"`
	DisplayDstAddress string          `json:"displayDstAddress,omitempty"`
}

// ExtraParameters carries the caller supplied message and its detached
// signature, checked by the extra signature plugin.
type ExtraParameters struct {
	Message        string `json:"message,omitempty"`
	ExtraSignature string `json:"extraSignature,omitempty"`
}

// ConfigChangeSignRequest is the payload of a configuration change approval
type ConfigChangeSignRequest struct {
	RequestID string `json:"requestId"`
	Type      string `json:"type,omitempty"`

	IssuedAt  *int64 `json:"iat,omitempty"`
	ExpiresAt *int64 `json:"exp,omitempty"`
}

// Response is the signed answer returned to the co-signer
type Response struct {
	Action          Action `json:"action"`
	RequestID       string `json:"requestId"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

// DefaultRejectionReason is sent when a plugin refuses without saying why
const DefaultRejectionReason = "Callback Handler Logic denied the transaction approval"

func (r *Response) validate() error {
	if !r.Action.IsValid() {
		return fmt.Errorf("invalid action: %q", string(r.Action))
	}
	if r.RequestID == "" {
		return fmt.Errorf("request ID is required")
	}
	return nil
}
