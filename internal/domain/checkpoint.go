package domain

// FetchCheckpoint records the highest block processed for a (wallet, kind).
// LastBlock never decreases for a given key.
type FetchCheckpoint struct {
	WalletID  string
	Kind      TransferKind
	LastBlock int64
	FetchedAt int64 // unix seconds
	TxCount   int   // rows inserted by the run that wrote the checkpoint
}
