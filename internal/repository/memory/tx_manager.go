package memory

import "context"

// TxManager выполняет fn без транзакции: in-memory хранилища не требуют её.
type TxManager struct{}

func (TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
