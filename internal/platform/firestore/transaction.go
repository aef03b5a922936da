package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	replaceAttempts = 5
	replaceTimeout  = 15 * time.Second
)

// Mutator derives the document to store from the current one. It may run more
// than once when Firestore retries the transaction, so it must not have side effects.
type Mutator[T any] func(current Document[T]) (T, error)

// Replace overwrites an existing document inside a transaction. The document
// must already exist; a missing id surfaces as a NotFound repository error.
func (r *BaseRepository[T]) Replace(ctx context.Context, id string, mutate Mutator[T]) (T, error) {
	var stored T
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return stored, err
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return stored, err
	}

	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > replaceTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, replaceTimeout)
		defer cancel()
	}

	err = client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(ref)
		if err != nil {
			return WrapError(r.op("get"), err)
		}
		current, err := r.decodeDocument(snapshot)
		if err != nil {
			return err
		}
		next, err := mutate(current)
		if err != nil {
			return err
		}
		if err := tx.Set(ref, next); err != nil {
			return err
		}
		stored = next
		return nil
	}, firestore.MaxAttempts(replaceAttempts))
	if err != nil {
		var zero T
		return zero, WrapError(r.op("replace"), err)
	}
	return stored, nil
}
