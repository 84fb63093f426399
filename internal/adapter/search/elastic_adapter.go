package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/rl1809/bookstore/internal/core/domain"
)

const DefaultIndex = "books"

const indexMapping = `{
  "mappings": {
    "properties": {
      "isbn":           {"type": "keyword"},
      "title":          {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "author":         {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "description":    {"type": "text"},
      "price":          {"type": "scaled_float", "scaling_factor": 100},
      "stock_quantity": {"type": "integer"},
      "featured":       {"type": "boolean"},
      "created_at":     {"type": "date"}
    }
  }
}`

var sortFields = map[domain.SortOrder]string{
	domain.SortTitle:         "title.keyword",
	domain.SortTitleDesc:     "title.keyword",
	domain.SortPrice:         "price",
	domain.SortPriceDesc:     "price",
	domain.SortCreatedAt:     "created_at",
	domain.SortCreatedAtDesc: "created_at",
}

// ElasticAdapter indexes the catalog for full-text search. Stock and price
// in the index may lag the database; callers reload hits from storage.
type ElasticAdapter struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticAdapter(client *elasticsearch.Client, index string) *ElasticAdapter {
	return &ElasticAdapter{client: client, index: index}
}

func NewClient(url string) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{url}})
}

// EnsureIndex creates the index with its mapping if it is missing.
func (a *ElasticAdapter) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{a.index}}.Do(ctx, a.client)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = esapi.IndicesCreateRequest{
		Index: a.index,
		Body:  strings.NewReader(indexMapping),
	}.Do(ctx, a.client)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("create index: %s", res.String())
	}
	return nil
}

type bookDocument struct {
	ISBN          string    `json:"isbn"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	Description   string    `json:"description"`
	Price         float64   `json:"price"`
	StockQuantity int       `json:"stock_quantity"`
	Featured      bool      `json:"featured"`
	CreatedAt     time.Time `json:"created_at"`
}

func (a *ElasticAdapter) IndexBook(ctx context.Context, book domain.Book) error {
	data, err := json.Marshal(bookDocument{
		ISBN:          book.ISBN,
		Title:         book.Title,
		Author:        book.Author,
		Description:   book.Description,
		Price:         book.Price.InexactFloat64(),
		StockQuantity: book.StockQuantity,
		Featured:      book.Featured,
		CreatedAt:     book.CreatedAt,
	})
	if err != nil {
		return err
	}

	res, err := esapi.IndexRequest{
		Index:      a.index,
		DocumentID: strconv.FormatInt(book.ID, 10),
		Body:       bytes.NewReader(data),
		Refresh:    "true",
	}.Do(ctx, a.client)
	if err != nil {
		return fmt.Errorf("index book %d: %w", book.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index book %d: %s", book.ID, res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

func buildSearchBody(q domain.BookQuery) map[string]any {
	must := map[string]any{"match_all": map[string]any{}}
	if q.Query != "" {
		must = map[string]any{
			"multi_match": map[string]any{
				"query":  q.Query,
				"fields": []string{"title", "author", "description"},
			},
		}
	}

	direction := "asc"
	if strings.HasPrefix(string(q.SortBy), "-") {
		direction = "desc"
	}

	return map[string]any{
		"from":             q.Offset(),
		"size":             q.PageSize,
		"track_total_hits": true,
		"_source":          false,
		"query": map[string]any{
			"bool": map[string]any{
				"must":   must,
				"filter": []any{map[string]any{"range": map[string]any{"stock_quantity": map[string]any{"gt": 0}}}},
			},
		},
		"sort": []any{
			map[string]any{sortFields[q.SortBy]: map[string]any{"order": direction}},
		},
	}
}

func (a *ElasticAdapter) SearchBookIDs(ctx context.Context, q domain.BookQuery) ([]int64, int, error) {
	q = q.Normalize()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildSearchBody(q)); err != nil {
		return nil, 0, fmt.Errorf("encode query: %w", err)
	}

	res, err := esapi.SearchRequest{
		Index: []string{a.index},
		Body:  &buf,
	}.Do(ctx, a.client)
	if err != nil {
		return nil, 0, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, 0, fmt.Errorf("search failed: %s: %s", res.Status(), body)
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]int64, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, r.Hits.Total.Value, nil
}
