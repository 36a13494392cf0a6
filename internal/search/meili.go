package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxCustomers = "lahtotiedot_customers"

// Meili indexes customers in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the customer
// index. The caller should proceed without search if the instance is
// down; the health loop will pick it up when it returns.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxCustomers,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxCustomers, err)
	}

	index := m.client.Index(idxCustomers)
	filterable := []interface{}{"edustajaId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxCustomers, err)
	}
	searchable := []string{"name", "email", "name1", "name2", "token"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxCustomers, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the customer index.
func (m *Meili) Search(q Query) ([]CustomerRecord, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	request := &meili.SearchRequest{
		Limit: limit,
	}
	if q.EdustajaID != "" {
		request.Filter = fmt.Sprintf("edustajaId = %q", q.EdustajaID)
	}

	resp, err := m.client.Index(idxCustomers).Search(q.Text, request)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]CustomerRecord, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToRecord(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToRecord(hit meili.Hit) CustomerRecord {
	record := CustomerRecord{
		Name:       decodeString(hit, "name"),
		Email:      decodeString(hit, "email"),
		Name1:      decodeString(hit, "name1"),
		Name2:      decodeString(hit, "name2"),
		Token:      decodeString(hit, "token"),
		EdustajaID: decodeString(hit, "edustajaId"),
	}
	if raw, ok := hit["id"]; ok {
		var number json.Number
		if err := json.Unmarshal(raw, &number); err == nil {
			if id, err := strconv.ParseInt(number.String(), 10, 64); err == nil {
				record.ID = id
			}
		}
	}
	return record
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}

// IndexCustomer adds or updates one customer document.
func (m *Meili) IndexCustomer(record CustomerRecord) error {
	_, err := m.client.Index(idxCustomers).AddDocuments([]CustomerRecord{record}, nil)
	if err != nil {
		return fmt.Errorf("index customer %d: %w", record.ID, err)
	}
	return nil
}

// IndexCustomers bulk-loads customer documents, used for reindexing.
func (m *Meili) IndexCustomers(records []CustomerRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCustomers).AddDocuments(records, nil)
	if err != nil {
		return fmt.Errorf("index customers: %w", err)
	}
	return nil
}

// DeleteCustomer removes a customer document from the index.
func (m *Meili) DeleteCustomer(id int64) error {
	_, err := m.client.Index(idxCustomers).DeleteDocument(strconv.FormatInt(id, 10), nil)
	if err != nil {
		return fmt.Errorf("delete customer %d: %w", id, err)
	}
	return nil
}
