package consumable

import "errors"

// ErrInvalidUsage indicates a negative runtime or volume was passed
// to the ledger.
var ErrInvalidUsage = errors.New("consumable: invalid usage value")
