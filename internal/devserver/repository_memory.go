package devserver

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository backs the devserver when no DynamoDB endpoint is
// configured. Also the repository the tests run against.
type MemoryRepository struct {
	mu        sync.Mutex
	customers map[string]Customer
	messages  map[string][]StoredMessage
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		customers: make(map[string]Customer),
		messages:  make(map[string][]StoredMessage),
	}
}

func (r *MemoryRepository) SaveCustomer(ctx context.Context, c Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[c.CustomerID] = c
	return nil
}

func (r *MemoryRepository) GetCustomer(ctx context.Context, customerID string) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[customerID]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepository) FindCustomerByEmail(ctx context.Context, businessID, email string) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if c.BusinessID == businessID && c.Email == email {
			return c, nil
		}
	}
	return Customer{}, ErrNotFound
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, customerID, status, agentName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[customerID]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	if agentName != "" {
		c.AgentName = agentName
	}
	r.customers[customerID] = c
	return nil
}

func (r *MemoryRepository) SaveMessage(ctx context.Context, m StoredMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[m.CustomerID] = append(r.messages[m.CustomerID], m)
	return nil
}

func (r *MemoryRepository) MessagesSince(ctx context.Context, customerID, since string, limit int) ([]StoredMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []StoredMessage
	for _, m := range r.messages[customerID] {
		if since == "" || m.Timestamp > since {
			out = append(out, m)
		}
	}
	// RFC3339 sorts lexicographically.
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) DeleteConversation(ctx context.Context, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, customerID)
	delete(r.customers, customerID)
	return nil
}
