package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"mentorgraph/internal/ledger"
)

const (
	pkPrefixEntity = "ENTITY#"
	skEntity       = "ENTITY"
	gsiPrefixType  = "TYPE#"
	typeIndexName  = "GSI1"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps ledger entities in a single DynamoDB table.
//
// Each entity is one item keyed by PK=ENTITY#<key>. A GSI (GSI1PK=TYPE#<type>,
// GSI1SK=<createdAt nanos>#<key>) serves attribute queries; the remaining filters
// run as a FilterExpression over the attrs map. Expiry uses the table's native
// TTL on the "ttl" attribute, which lags, so reads also filter on expiresAt.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

var _ ledger.Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore over tableName.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

// entityPK returns the partition key for an entity.
func entityPK(key string) string {
	return pkPrefixEntity + key
}

// typeSK orders entities of one type by creation time, then key.
func typeSK(e ledger.Entity) string {
	return fmt.Sprintf("%019d#%s", e.CreatedAt.UnixNano(), e.Key)
}

// Put writes a new entity item; existing keys are rejected.
func (s *DynamoStore) Put(ctx context.Context, e ledger.Entity) error {
	if strings.TrimSpace(e.Key) == "" {
		return errors.New("repository: Put: key is required")
	}
	if e.Type() == "" {
		return errors.New("repository: Put: type attribute is required")
	}

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                entityItem(e),
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("repository: Put %s: %w", e.Key, ledger.ErrDuplicateKey)
		}
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

// Get reads one entity by key.
func (s *DynamoStore) Get(ctx context.Context, key string) (ledger.Entity, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: entityPK(key)},
			"SK": &types.AttributeValueMemberS{Value: skEntity},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return ledger.Entity{}, fmt.Errorf("repository: Get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return ledger.Entity{}, ledger.ErrNotFound
	}

	e, err := itemToEntity(out.Item)
	if err != nil {
		return ledger.Entity{}, fmt.Errorf("repository: Get unmarshal: %w", err)
	}
	if e.Expired(s.now()) {
		return ledger.Entity{}, ledger.ErrNotFound
	}
	return e, nil
}

// Query runs one page of an attribute query against the type index.
// Pages can come back short (even empty) with a cursor because DynamoDB applies
// Limit before the filter.
func (s *DynamoStore) Query(ctx context.Context, q ledger.Query) (ledger.Page, error) {
	typ, ok := q.TypeFilter()
	if !ok {
		return ledger.Page{}, fmt.Errorf("repository: Query: %w: type filter is required", ledger.ErrInvalidQuery)
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(typeIndexName),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#exp": "expiresAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: gsiPrefixType + typ},
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().UnixNano(), 10)},
		},
		ScanIndexForward: aws.Bool(true),
		Limit:            aws.Int32(int32(q.PageSize())),
	}

	filter := []string{"#exp > :now"}
	i := 0
	for _, f := range q.Filters {
		if f.Key == ledger.TypeAttribute {
			continue
		}
		name, value := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
		in.ExpressionAttributeNames["#attrs"] = "attrs"
		in.ExpressionAttributeNames[name] = f.Key
		in.ExpressionAttributeValues[value] = &types.AttributeValueMemberS{Value: f.Value}
		filter = append(filter, fmt.Sprintf("#attrs.%s = %s", name, value))
		i++
	}
	in.FilterExpression = aws.String(strings.Join(filter, " AND "))

	if q.Cursor != "" {
		start, err := decodeStartKey(q.Cursor)
		if err != nil {
			return ledger.Page{}, fmt.Errorf("repository: Query: %w", err)
		}
		in.ExclusiveStartKey = start
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return ledger.Page{}, fmt.Errorf("repository: Query: %w", err)
	}

	page := ledger.Page{Entities: make([]ledger.Entity, 0, len(out.Items))}
	for _, item := range out.Items {
		e, err := itemToEntity(item)
		if err != nil {
			return ledger.Page{}, fmt.Errorf("repository: Query unmarshal: %w", err)
		}
		page.Entities = append(page.Entities, e)
	}
	if len(out.LastEvaluatedKey) > 0 {
		cursor, err := encodeStartKey(out.LastEvaluatedKey)
		if err != nil {
			return ledger.Page{}, fmt.Errorf("repository: Query: %w", err)
		}
		page.NextCursor = cursor
	}
	return page, nil
}

func entityItem(e ledger.Entity) map[string]types.AttributeValue {
	attrs := make(map[string]types.AttributeValue, len(e.Attributes))
	order := make([]types.AttributeValue, 0, len(e.Attributes))
	for _, a := range e.Attributes {
		attrs[a.Key] = &types.AttributeValueMemberS{Value: a.Value}
		order = append(order, &types.AttributeValueMemberS{Value: a.Key})
	}
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: entityPK(e.Key)},
		"SK":        &types.AttributeValueMemberS{Value: skEntity},
		"GSI1PK":    &types.AttributeValueMemberS{Value: gsiPrefixType + e.Type()},
		"GSI1SK":    &types.AttributeValueMemberS{Value: typeSK(e)},
		"entityKey": &types.AttributeValueMemberS{Value: e.Key},
		"owner":     &types.AttributeValueMemberS{Value: e.Owner},
		"attrs":     &types.AttributeValueMemberM{Value: attrs},
		"attrOrder": &types.AttributeValueMemberL{Value: order},
		"payload":   &types.AttributeValueMemberB{Value: e.Payload},
		"createdAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(e.CreatedAt.UnixNano(), 10)},
		"expiresAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(e.ExpiresAt.UnixNano(), 10)},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(e.ExpiresAt.Unix(), 10)},
	}
}

// itemToEntity converts a DynamoDB attribute map to an Entity.
func itemToEntity(item map[string]types.AttributeValue) (ledger.Entity, error) {
	key, err := strAttr(item, "entityKey")
	if err != nil {
		return ledger.Entity{}, err
	}
	owner, _ := strAttr(item, "owner") // allow empty
	created, err := int64Attr(item, "createdAt")
	if err != nil {
		return ledger.Entity{}, err
	}
	expires, err := int64Attr(item, "expiresAt")
	if err != nil {
		return ledger.Entity{}, err
	}

	var payload []byte
	if v, ok := item["payload"].(*types.AttributeValueMemberB); ok {
		payload = v.Value
	}

	attrs, err := attributesFromItem(item)
	if err != nil {
		return ledger.Entity{}, err
	}

	return ledger.Entity{
		Key:        key,
		Owner:      owner,
		Attributes: attrs,
		Payload:    payload,
		CreatedAt:  time.Unix(0, created).UTC(),
		ExpiresAt:  time.Unix(0, expires).UTC(),
	}, nil
}

// attributesFromItem rebuilds the ordered attribute list from the attrs map and
// the attrOrder list written next to it.
func attributesFromItem(item map[string]types.AttributeValue) ([]ledger.Attribute, error) {
	m, ok := item["attrs"].(*types.AttributeValueMemberM)
	if !ok {
		return nil, errors.New("repository: attribute \"attrs\" is not a map")
	}
	var order []string
	if l, ok := item["attrOrder"].(*types.AttributeValueMemberL); ok {
		for _, v := range l.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				order = append(order, s.Value)
			}
		}
	}
	if len(order) != len(m.Value) {
		order = order[:0]
		for k := range m.Value {
			order = append(order, k)
		}
	}

	attrs := make([]ledger.Attribute, 0, len(order))
	for _, k := range order {
		v, ok := m.Value[k].(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("repository: entity attribute %q is not a string", k)
		}
		attrs = append(attrs, ledger.Attribute{Key: k, Value: v.Value})
	}
	return attrs, nil
}

func encodeStartKey(key map[string]types.AttributeValue) (string, error) {
	flat := make(map[string]string, len(key))
	for k, v := range key {
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("repository: start key %q is not a string", k)
		}
		flat[k] = s.Value
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeStartKey(cursor string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: cursor: %v", ledger.ErrInvalidQuery, err)
	}
	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("%w: cursor: %v", ledger.ErrInvalidQuery, err)
	}
	key := make(map[string]types.AttributeValue, len(flat))
	for k, v := range flat {
		key[k] = &types.AttributeValueMemberS{Value: v}
	}
	return key, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
