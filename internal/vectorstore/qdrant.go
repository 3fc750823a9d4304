package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

type QdrantConfig struct {
	// URL is the Qdrant gRPC address, e.g. "http://localhost:6334".
	URL    string
	APIKey string
}

// QdrantStore implements Store on a Qdrant server.
type QdrantStore struct {
	client *qdrant.Client
}

func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant url: %w", err)
	}

	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &QdrantStore{client: client}, nil
}

// EnsureCollection creates a cosine collection unless it already exists.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dimensions int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", collection, err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]SearchResult, error) {
	limitUint64 := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limitUint64,
		Filter:         buildQdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		if filter.MinScore > 0 && point.Score < filter.MinScore {
			continue
		}

		result := SearchResult{
			Score:    point.Score,
			Metadata: make(map[string]any, len(point.Payload)),
		}
		if point.Id != nil {
			if id := point.Id.GetUuid(); id != "" {
				result.ID = id
			} else {
				result.ID = strconv.FormatUint(point.Id.GetNum(), 10)
			}
		}
		for k, v := range point.Payload {
			result.Metadata[k] = extractValue(v)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func buildQdrantFilter(filter Filter) *qdrant.Filter {
	if len(filter.Metadata) == 0 {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, len(filter.Metadata))
	for key, value := range filter.Metadata {
		conditions = append(conditions, buildMatchCondition(key, value))
	}
	return &qdrant.Filter{Must: conditions}
}

func buildMatchCondition(key string, value any) *qdrant.Condition {
	var match *qdrant.Match

	switch v := value.(type) {
	case string:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	case int:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
	case int64:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
	case bool:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	default:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", v)}}
	}

	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: match,
			},
		},
	}
}

func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}

	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

var _ Store = (*QdrantStore)(nil)
