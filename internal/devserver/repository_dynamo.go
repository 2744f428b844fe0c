package devserver

import (
	"context"
	"errors"
	"fmt"

	"chat-widget-engine/internal/database"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoRepository stores everything in one table keyed by customerId with a
// type-discriminating sort key: "CUSTOMER" for the profile, "MSG#<ts>#<id>"
// for transcript entries. An extra item under "EMAIL#<biz>#<email>" points a
// returning visitor back at their customer id.
type DynamoRepository struct {
	db    *database.Database
	table string
}

func NewDynamoRepository(db *database.Database, table string) *DynamoRepository {
	return &DynamoRepository{db: db, table: table}
}

const customerSortKey = "CUSTOMER"

type dynamoItem struct {
	PK       string         `dynamodbav:"customerId"`
	SK       string         `dynamodbav:"sk"`
	Customer *Customer      `dynamodbav:"customer,omitempty"`
	Message  *StoredMessage `dynamodbav:"message,omitempty"`
}

func emailKey(businessID, email string) string {
	return fmt.Sprintf("EMAIL#%s#%s", businessID, email)
}

func messageSortKey(m StoredMessage) string {
	return fmt.Sprintf("MSG#%s#%s", m.Timestamp, m.ID)
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"customerId": database.AttrString(pk),
		"sk":         database.AttrString(sk),
	}
}

func (r *DynamoRepository) SaveCustomer(ctx context.Context, c Customer) error {
	item := dynamoItem{PK: c.CustomerID, SK: customerSortKey, Customer: &c}
	if err := r.db.Client.PutItem(ctx, r.table, item); err != nil {
		return err
	}
	if c.Email == "" {
		return nil
	}
	index := dynamoItem{PK: emailKey(c.BusinessID, c.Email), SK: customerSortKey, Customer: &c}
	return r.db.Client.PutItem(ctx, r.table, index)
}

func (r *DynamoRepository) getCustomerItem(ctx context.Context, pk string) (Customer, error) {
	var item dynamoItem
	err := r.db.Client.GetItem(ctx, r.table, itemKey(pk, customerSortKey), &item)
	if errors.Is(err, database.ErrItemNotFound) {
		return Customer{}, ErrNotFound
	} else if err != nil {
		return Customer{}, err
	}
	if item.Customer == nil {
		return Customer{}, ErrNotFound
	}
	return *item.Customer, nil
}

func (r *DynamoRepository) GetCustomer(ctx context.Context, customerID string) (Customer, error) {
	return r.getCustomerItem(ctx, customerID)
}

func (r *DynamoRepository) FindCustomerByEmail(ctx context.Context, businessID, email string) (Customer, error) {
	return r.getCustomerItem(ctx, emailKey(businessID, email))
}

func (r *DynamoRepository) UpdateStatus(ctx context.Context, customerID, status, agentName string) error {
	c, err := r.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	c.Status = status
	if agentName != "" {
		c.AgentName = agentName
	}
	return r.SaveCustomer(ctx, c)
}

func (r *DynamoRepository) SaveMessage(ctx context.Context, m StoredMessage) error {
	item := dynamoItem{PK: m.CustomerID, SK: messageSortKey(m), Message: &m}
	return r.db.Client.PutItem(ctx, r.table, item)
}

func (r *DynamoRepository) MessagesSince(ctx context.Context, customerID, since string, limit int) ([]StoredMessage, error) {
	// RFC3339 timestamps embedded in the sort key keep messages in
	// chronological order; strictly-after is a plain range condition.
	var items []dynamoItem
	err := r.db.Client.QueryItems(ctx, r.table,
		"customerId = :cid AND sk > :since",
		map[string]types.AttributeValue{
			":cid":   database.AttrString(customerID),
			":since": database.AttrString("MSG#" + since),
		},
		int32(limit),
		&items,
	)
	if err != nil {
		return nil, err
	}

	out := make([]StoredMessage, 0, len(items))
	for _, item := range items {
		if item.Message != nil {
			out = append(out, *item.Message)
		}
	}
	return out, nil
}

func (r *DynamoRepository) DeleteConversation(ctx context.Context, customerID string) error {
	c, err := r.GetCustomer(ctx, customerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	var items []dynamoItem
	if err := r.db.Client.QueryItems(ctx, r.table,
		"customerId = :cid",
		map[string]types.AttributeValue{":cid": database.AttrString(customerID)},
		0,
		&items,
	); err != nil {
		return err
	}

	for _, item := range items {
		if err := r.db.Client.DeleteItem(ctx, r.table, itemKey(item.PK, item.SK)); err != nil {
			return err
		}
	}

	if c.Email != "" {
		return r.db.Client.DeleteItem(ctx, r.table, itemKey(emailKey(c.BusinessID, c.Email), customerSortKey))
	}
	return nil
}
