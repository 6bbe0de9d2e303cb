package domain

// Wallet is a tracked multisig. ID is a stable slug from configuration.
type Wallet struct {
	ID          string
	Name        string
	Address     string // chain address, empty when not yet deployed
	Description string
}
