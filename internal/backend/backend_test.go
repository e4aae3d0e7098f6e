package backend

// Compile-time assertions that both adapters satisfy Backend.
var (
	_ Backend = (*Postgres)(nil)
	_ Backend = (*Ledger)(nil)
)
