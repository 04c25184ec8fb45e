// Package postgres implements the store interfaces on pgx. The coordination
// primitives (counter increment, conditional transitions) are single UPDATE
// statements so concurrent jobs never race through read-modify-write.
package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loceval/loceval/internal/store"
)

// New wires every store over one shared pool.
func New(pool *pgxpool.Pool) *store.Stores {
	return &store.Stores{
		Prompts:     &promptStore{pool: pool},
		History:     &historyStore{pool: pool},
		Evaluations: &evaluationStore{pool: pool},
		Results:     &resultStore{pool: pool},
		Sessions:    &sessionStore{pool: pool},
		TestSets:    &testSetStore{pool: pool},
	}
}

func marshalJSON(v any, what string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", what, err)
	}
	return b, nil
}

func unmarshalJSON(b []byte, dest any, what string) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}
