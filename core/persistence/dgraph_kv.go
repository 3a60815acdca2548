package persistence

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/dgraph-io/dgo/v230/protos/api"

	"github.com/cogpy/causalreason/core/contracts"
)

// kvSchema declares the predicates DgraphKV's namespace/key lookups need
// indexed; SetSchema is idempotent, so EnsureSchema can run on every
// startup.
const kvSchema = `
kv.namespace: string @index(exact) .
kv.key: string @index(exact) .
kv.value: string .
`

// DgraphKV adapts a DgraphClient into contracts.PersistentKV, storing each
// value as a base64 string under two exact-indexed predicates so a single
// upsert query resolves the (namespace, key) pair to at most one node.
type DgraphKV struct {
	client *DgraphClient
}

// NewDgraphKV wraps an already-connected client.
func NewDgraphKV(client *DgraphClient) *DgraphKV {
	return &DgraphKV{client: client}
}

// EnsureSchema installs the namespace/key/value predicates. Call once
// after connecting, before the first Store/Retrieve.
func (d *DgraphKV) EnsureSchema() error {
	return d.client.SetSchema(kvSchema)
}

var _ contracts.PersistentKV = (*DgraphKV)(nil)

// Store upserts value under (namespace, key): an existing node is
// updated in place, a missing one is created, via Dgraph's uid(v)
// upsert-block idiom.
func (d *DgraphKV) Store(ctx context.Context, namespace, key string, value []byte) error {
	const op = "persistence.DgraphKV.Store"
	query := fmt.Sprintf(`{ q(func: eq(kv.namespace, %q)) @filter(eq(kv.key, %q)) { v as uid } }`, namespace, key)
	nquads := fmt.Sprintf(
		"uid(v) <kv.namespace> %q .\nuid(v) <kv.key> %q .\nuid(v) <kv.value> %q .\n",
		namespace, key, base64.StdEncoding.EncodeToString(value),
	)
	mu := &api.Mutation{SetNquads: []byte(nquads)}
	if _, err := d.client.Upsert(ctx, query, mu); err != nil {
		return contracts.NewError(contracts.KindPersistence, op, err)
	}
	return nil
}

type kvQueryResult struct {
	Q []struct {
		Value string `json:"kv.value"`
	} `json:"q"`
}

// Retrieve looks up the value stored under (namespace, key).
func (d *DgraphKV) Retrieve(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	const op = "persistence.DgraphKV.Retrieve"
	query := fmt.Sprintf(`{ q(func: eq(kv.namespace, %q)) @filter(eq(kv.key, %q)) { kv.value } }`, namespace, key)
	resp, err := d.client.Query(ctx, query, nil)
	if err != nil {
		return nil, false, contracts.NewError(contracts.KindPersistence, op, err)
	}

	var parsed kvQueryResult
	if err := UnmarshalJSON(resp.GetJson(), &parsed); err != nil {
		return nil, false, contracts.NewError(contracts.KindPersistence, op, err)
	}
	if len(parsed.Q) == 0 {
		return nil, false, nil
	}
	value, err := base64.StdEncoding.DecodeString(parsed.Q[0].Value)
	if err != nil {
		return nil, false, contracts.NewError(contracts.KindPersistence, op, err)
	}
	return value, true, nil
}
