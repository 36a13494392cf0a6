package search

import (
	"context"
	"log"

	"lahtotiedot/api/internal/store"
)

type fallbackStore interface {
	SearchCustomers(ctx context.Context, query, edustajaID string, limit int) ([]store.Customer, error)
}

// Service tries Meilisearch first and falls back to a PostgreSQL
// ILIKE scan when the index is missing or down.
type Service struct {
	meili *Meili
	db    fallbackStore
}

// NewService creates a search service. meili may be nil if
// Meilisearch is not configured.
func NewService(meili *Meili, db fallbackStore) *Service {
	return &Service{meili: meili, db: db}
}

// nonNil keeps the JSON results array as [] rather than null.
func nonNil(records []CustomerRecord) []CustomerRecord {
	if records == nil {
		return []CustomerRecord{}
	}
	return records
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	customers, err := s.db.SearchCustomers(ctx, q.Text, q.EdustajaID, q.Limit)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []CustomerRecord{}, Total: 0, Query: q.Text}
	}
	results := make([]CustomerRecord, 0, len(customers))
	for _, customer := range customers {
		results = append(results, RecordFromCustomer(customer))
	}
	return Response{Results: results, Total: len(results), Query: q.Text}
}

// IndexCustomer pushes a customer into the index, fire-and-forget.
func (s *Service) IndexCustomer(customer store.Customer) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFromCustomer(customer)
	go func() {
		if err := s.meili.IndexCustomer(record); err != nil {
			log.Printf("search: index customer %d: %v", record.ID, err)
		}
	}()
}

// DeleteCustomer removes a customer from the index, fire-and-forget.
func (s *Service) DeleteCustomer(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteCustomer(id); err != nil {
			log.Printf("search: delete customer %d: %v", id, err)
		}
	}()
}

// Reindex bulk-loads the whole customer table into Meilisearch, used
// at startup.
func (s *Service) Reindex(customers []store.Customer) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	records := make([]CustomerRecord, 0, len(customers))
	for _, customer := range customers {
		records = append(records, RecordFromCustomer(customer))
	}
	if err := s.meili.IndexCustomers(records); err != nil {
		log.Printf("search: reindex customers: %v", err)
	}
}

// RecordFromCustomer flattens the nullable customer columns for
// indexing.
func RecordFromCustomer(customer store.Customer) CustomerRecord {
	record := CustomerRecord{
		ID:    customer.ID,
		Name:  customer.Name,
		Email: customer.Email,
		Name1: customer.Name1,
		Token: customer.Token,
	}
	if customer.Name2 != nil {
		record.Name2 = *customer.Name2
	}
	if customer.EdustajaID != nil {
		record.EdustajaID = *customer.EdustajaID
	}
	return record
}
