package search

// CustomerRecord is the data we index per customer.
type CustomerRecord struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Name1      string `json:"name1"`
	Name2      string `json:"name2"`
	Token      string `json:"token"`
	EdustajaID string `json:"edustajaId"`
}

// Query describes a customer search. A non-empty EdustajaID limits
// hits to that representative's customers.
type Query struct {
	Text       string
	EdustajaID string
	Limit      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []CustomerRecord `json:"results"`
	Total   int              `json:"total"`
	Query   string           `json:"query"`
}
