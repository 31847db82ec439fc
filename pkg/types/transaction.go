package types

// TransferPeerPath names the source of a transfer
type TransferPeerPath struct {
	Type PeerType `json:"type"`
	ID   string   `json:"id"`
}

// DestinationTransferPeerPath names the destination of a transfer. OneTimeAddress
// is only set when Type is ONE_TIME_ADDRESS.
type DestinationTransferPeerPath struct {
	Type           PeerType        `json:"type"`
	ID             string          `json:"id,omitempty"`
	OneTimeAddress *OneTimeAddress `json:"oneTimeAddress,omitempty"`
}

type OneTimeAddress struct {
	Address string  `json:"address"`
	Tag     *string `json:"tag,omitempty"`
}

// TransactionArguments is the body of a transaction creation
type TransactionArguments struct {
	AssetID         string                       `json:"assetId"`
	Operation       TransactionOperation         `json:"operation"`
	Source          TransferPeerPath             `json:"source"`
	Destination     *DestinationTransferPeerPath `json:"destination,omitempty"`
	Amount          string                       `json:"amount"`
	Note            string                       `json:"note,omitempty"`
	ExtraParameters *ExtraParameters             `json:"extraParameters,omitempty"`
	GasPrice        *string                      `json:"gasPrice,omitempty"`
	GasLimit        *string                      `json:"gasLimit,omitempty"`
	ExternalTxID    *string                      `json:"externalTxId,omitempty"`
}

// ExtraParameters carries operation specific data: contract call data for
// CONTRACT_CALL, messages for RAW.
type ExtraParameters struct {
	ContractCallData *string         `json:"contractCallData,omitempty"`
	RawMessageData   *RawMessageData `json:"rawMessageData,omitempty"`
}

type RawMessageData struct {
	Messages []UnsignedMessage `json:"messages"`
}

type UnsignedMessage struct {
	Content string `json:"content"`
}

type CreateTransactionResponse struct {
	ID     string            `json:"id"`
	Status TransactionStatus `json:"status"`
}

type TransactionDetails struct {
	ID             string            `json:"id"`
	AssetID        string            `json:"assetId"`
	TxHash         string            `json:"txHash"`
	Status         TransactionStatus `json:"status"`
	SubStatus      string            `json:"subStatus"`
	SignedMessages []SignedMessage   `json:"signedMessages"`
}

type SignedMessage struct {
	Content        string    `json:"content"`
	Algorithm      string    `json:"algorithm"`
	DerivationPath []uint32  `json:"derivationPath"`
	Signature      Signature `json:"signature"`
	PublicKey      string    `json:"publicKey"`
}

type Signature struct {
	FullSig string `json:"fullSig"`
	R       string `json:"r"`
	S       string `json:"s"`
	V       uint64 `json:"v"`
}
