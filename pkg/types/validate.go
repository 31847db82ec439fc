package types

import "fmt"

// Validator is implemented by response types with required fields that a
// plain JSON decode would leave at their zero value.
type Validator interface {
	Validate() error
}

var (
	_ Validator = (*CreateTransactionResponse)(nil)
	_ Validator = (*TransactionDetails)(nil)
	_ Validator = (*TransactionArguments)(nil)
	_ Validator = (*VaultAccount)(nil)
	_ Validator = (*VaultAsset)(nil)
	_ Validator = (*PagedVaultAccountsResponse)(nil)
)

func (r *CreateTransactionResponse) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("transaction id is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid transaction status: %q", string(r.Status))
	}
	return nil
}

func (t *TransactionDetails) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction id is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid transaction status: %q", string(t.Status))
	}
	return nil
}

// Validate checks the closed enums of a transaction before it is sent
func (a *TransactionArguments) Validate() error {
	if !a.Operation.IsValid() {
		return fmt.Errorf("invalid transaction operation: %q", string(a.Operation))
	}
	if !a.Source.Type.IsValid() {
		return fmt.Errorf("invalid source peer type: %q", string(a.Source.Type))
	}
	if a.Destination != nil {
		if !a.Destination.Type.IsValid() {
			return fmt.Errorf("invalid destination peer type: %q", string(a.Destination.Type))
		}
		if a.Destination.Type == PeerOneTimeAddress && a.Destination.OneTimeAddress == nil {
			return fmt.Errorf("one time address destination requires an address")
		}
	}
	return nil
}

func (v *VaultAccount) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vault account id is required")
	}
	for i := range v.Assets {
		if err := v.Assets[i].Validate(); err != nil {
			return fmt.Errorf("vault account %s asset %d: %w", v.ID, i, err)
		}
	}
	return nil
}

func (v *VaultAsset) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vault asset id is required")
	}
	return nil
}

func (p *PagedVaultAccountsResponse) Validate() error {
	for i := range p.Accounts {
		if err := p.Accounts[i].Validate(); err != nil {
			return fmt.Errorf("account %d: %w", i, err)
		}
	}
	return nil
}
