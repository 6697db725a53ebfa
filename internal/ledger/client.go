package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

const defaultMaxEntities = 1000

// Signer signs entity writes on behalf of the service wallet.
type Signer interface {
	Address() string
	Sign(msg []byte) ([]byte, error)
	Verify(msg, sig []byte) bool
}

// CreateInput describes an entity to write.
type CreateInput struct {
	Attributes []Attribute
	Payload    []byte
	TTL        time.Duration
}

// Client writes signed entities to a Store and reads them back.
type Client struct {
	store       Store
	signer      Signer
	maxEntities int
	now         func() time.Time
	newNonce    func() string
}

// NewClient returns a Client. maxEntities caps QueryAll; <= 0 selects the default.
func NewClient(store Store, signer Signer, maxEntities int) (*Client, error) {
	if store == nil {
		return nil, errors.New("ledger: store must not be nil")
	}
	if signer == nil {
		return nil, errors.New("ledger: signer must not be nil")
	}
	if maxEntities <= 0 {
		maxEntities = defaultMaxEntities
	}
	return &Client{
		store:       store,
		signer:      signer,
		maxEntities: maxEntities,
		now:         time.Now,
		newNonce:    uuid.NewString,
	}, nil
}

// Owner returns the address entities are written under.
func (c *Client) Owner() string {
	return c.signer.Address()
}

// Create signs and stores a new entity, returning its key and transaction hash.
func (c *Client) Create(ctx context.Context, in CreateInput) (Receipt, error) {
	if in.TTL <= 0 {
		return Receipt{}, errors.New("ledger: Create: ttl must be positive")
	}
	if _, ok := (Query{Filters: in.Attributes}).TypeFilter(); !ok {
		return Receipt{}, errors.New("ledger: Create: type attribute is required")
	}

	now := c.now().UTC()
	e := Entity{
		Owner:      c.signer.Address(),
		Attributes: append([]Attribute(nil), in.Attributes...),
		Payload:    append([]byte(nil), in.Payload...),
		CreatedAt:  now,
		ExpiresAt:  now.Add(in.TTL),
	}

	canonical, err := canonicalBytes(e, c.newNonce())
	if err != nil {
		return Receipt{}, fmt.Errorf("ledger: Create: %w", err)
	}
	sig, err := c.signer.Sign(canonical)
	if err != nil {
		return Receipt{}, fmt.Errorf("ledger: Create sign: %w", err)
	}
	if !c.signer.Verify(canonical, sig) {
		return Receipt{}, errors.New("ledger: Create: signature does not verify")
	}
	e.Key = HexHash(canonical)
	txHash := HexHash(canonical, sig)

	if err := c.store.Put(ctx, e); err != nil {
		return Receipt{}, fmt.Errorf("ledger: Create put: %w", err)
	}
	return Receipt{EntityKey: e.Key, TxHash: txHash}, nil
}

// Get loads one entity by key.
func (c *Client) Get(ctx context.Context, key string) (Entity, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return Entity{}, ErrNotFound
	}
	return c.store.Get(ctx, key)
}

// QueryAll walks every page of q, oldest first, and returns the newest entities
// up to the client's cap in the same order.
func (c *Client) QueryAll(ctx context.Context, filters ...Attribute) ([]Entity, error) {
	q := Query{Filters: filters}
	out := make([]Entity, 0)
	for {
		page, err := c.store.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("ledger: QueryAll: %w", err)
		}
		out = append(out, page.Entities...)
		if over := len(out) - c.maxEntities; over > 0 {
			out = append(make([]Entity, 0, c.maxEntities), out[over:]...)
		}
		if page.NextCursor == "" {
			return out, nil
		}
		q.Cursor = page.NextCursor
	}
}

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// HexHash returns the 0x-prefixed keccak-256 of data.
func HexHash(data ...[]byte) string {
	return "0x" + hex.EncodeToString(Keccak256(data...))
}

func canonicalBytes(e Entity, nonce string) ([]byte, error) {
	return json.Marshal(struct {
		Owner      string      `json:"owner"`
		Attributes []Attribute `json:"attributes"`
		Payload    []byte      `json:"payload"`
		CreatedAt  int64       `json:"createdAt"`
		ExpiresAt  int64       `json:"expiresAt"`
		Nonce      string      `json:"nonce"`
	}{
		Owner:      e.Owner,
		Attributes: e.Attributes,
		Payload:    e.Payload,
		CreatedAt:  e.CreatedAt.UnixNano(),
		ExpiresAt:  e.ExpiresAt.UnixNano(),
		Nonce:      nonce,
	})
}
