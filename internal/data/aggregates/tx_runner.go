package aggregates

import (
	"context"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
)

// TxRunner is the transaction boundary of every aggregate write.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return domainagg.NewError(domainagg.CodeInternal, "aggregate.tx", "transaction runner has nil db", nil)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

// inSavepoint runs fn under a named savepoint of the current transaction and
// rolls back to it when fn fails. The transaction itself stays usable.
func inSavepoint(dbc dbctx.Context, name string, fn func(dbc dbctx.Context) error) error {
	if dbc.Tx == nil {
		return fn(dbc)
	}
	if err := dbc.Tx.SavePoint(name).Error; err != nil {
		return err
	}
	if err := fn(dbc); err != nil {
		if rbErr := dbc.Tx.RollbackTo(name).Error; rbErr != nil {
			return rbErr
		}
		return err
	}
	return nil
}
