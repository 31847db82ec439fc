package types

// Paging carries the cursors of a paged listing
type Paging struct {
	Before *string `json:"before,omitempty"`
	After  *string `json:"after,omitempty"`
}

// VaultAsset is the balance of one asset inside a vault account
type VaultAsset struct {
	ID                   string  `json:"id"`
	Total                string  `json:"total"`
	Balance              *string `json:"balance,omitempty"` // deprecated upstream, use Total
	LockedAmount         *string `json:"lockedAmount,omitempty"`
	Available            *string `json:"available,omitempty"`
	Pending              *string `json:"pending,omitempty"`
	Frozen               *string `json:"frozen,omitempty"`
	Staked               *string `json:"staked,omitempty"`
	SelfStakedCPU        *string `json:"selfStakedCpu,omitempty"`
	SelfStakedNetwork    *string `json:"selfStakedNetwork,omitempty"`
	PendingRefundCPU     *string `json:"pendingRefundCpu,omitempty"`
	PendingRefundNetwork *string `json:"pendingRefundNetwork,omitempty"`
	TotalStakedCPU       *string `json:"totalStakedCpu,omitempty"`
	TotalStakedNetwork   *string `json:"totalStakedNetwork,omitempty"`
	BlockHeight          *string `json:"blockHeight,omitempty"`
	BlockHash            *string `json:"blockHash,omitempty"`
}

type VaultAccount struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	HiddenOnUI    bool         `json:"hiddenOnUI"`
	Assets        []VaultAsset `json:"assets"`
	CustomerRefID *string      `json:"customerRefId,omitempty"`
	AutoFuel      bool         `json:"autoFuel"`
}

type PagedVaultAccountsResponse struct {
	Accounts    []VaultAccount `json:"accounts"`
	Paging      *Paging        `json:"paging,omitempty"`
	PreviousURL *string        `json:"previousUrl,omitempty"`
	NextURL     *string        `json:"nextUrl,omitempty"`
}

// CreateVaultRequest is the body of a vault account creation
type CreateVaultRequest struct {
	Name          string  `json:"name"`
	HiddenOnUI    bool    `json:"hiddenOnUI"`
	CustomerRefID *string `json:"customerRefId,omitempty"`
	AutoFuel      bool    `json:"autoFuel"`
}

// AssetType describes an asset the workspace supports
type AssetType struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	ContractAddress string `json:"contractAddress"`
	NativeAsset     string `json:"nativeAsset"`
	Decimals        *int64 `json:"decimals,omitempty"`
}

// AssetWallet is one (vault, asset) balance in the asset wallets listing
type AssetWallet struct {
	VaultID      string `json:"vaultId"`
	AssetID      string `json:"assetId"`
	Total        string `json:"total"`
	Available    string `json:"available"`
	Pending      string `json:"pending"`
	Staked       string `json:"staked"`
	Frozen       string `json:"frozen"`
	LockedAmount string `json:"lockedAmount"`
	BlockHeight  string `json:"blockHeight"`
	BlockHash    string `json:"blockHash"`
	CreationTime string `json:"creationTime"`
}

type AssetWalletsResponse struct {
	AssetWallets []AssetWallet `json:"assetWallets"`
	Paging       Paging        `json:"paging"`
}

type DepositAddress struct {
	AssetID       string  `json:"assetId"`
	Address       string  `json:"address"`
	Tag           *string `json:"tag,omitempty"`
	Description   *string `json:"description,omitempty"`
	Type          string  `json:"type"`
	LegacyAddress *string `json:"legacyAddress,omitempty"`
	CustomerRefID *string `json:"customerRefId,omitempty"`
	AddressFormat *string `json:"addressFormat,omitempty"`
}

// UnspentInput is a UTXO held by a vault address
type UnspentInput struct {
	Address       string `json:"address"`
	Input         Input  `json:"input"`
	Amount        string `json:"amount"`
	Confirmations string `json:"confirmations"`
	Status        string `json:"status"`
}

type Input struct {
	TxHash string `json:"txHash"`
	Number int64  `json:"number"`
}

// RequestOptions are optional per-call settings serialized into the body of
// write calls that accept them.
type RequestOptions struct {
	IdempotencyKey *string `json:"idempotencyKey,omitempty"`
	NCW            *NCW    `json:"ncw,omitempty"`
}

// NCW scopes a call to a non-custodial wallet
type NCW struct {
	WalletID *string `json:"wallet_id,omitempty"`
}
