package memory

import (
	"context"

	"github.com/hotelportal/account-recovery/internal/repository"
)

// TxRunner runs the unit of work directly. Writes already made by fn are not
// rolled back when it fails.
type TxRunner struct{}

var _ repository.TxRunner = TxRunner{}

func (TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
