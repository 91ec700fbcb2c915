package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kessa-dev/kessa/internal/errs"
)

// QdrantConfig holds configuration for connecting to a Qdrant
// instance.
type QdrantConfig struct {
	URL    string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey string
}

// QdrantStore implements Store over a remote Qdrant deployment, with
// one Qdrant collection per kessa collection name.
type QdrantStore struct {
	client *qdrant.Client
	logger *slog.Logger
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// Accepts forms like "https://host:6333", "http://host:6333", or "host:6334".
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("vectorstore: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("vectorstore: invalid port in qdrant URL: %q", portStr)
		}
		// If the user specified the REST port (6333), use the gRPC port (6334).
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantStore connects to a Qdrant server via gRPC.
func NewQdrantStore(cfg QdrantConfig, logger *slog.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantStore{client: client, logger: logger}, nil
}

func toQdrantDistance(d Distance) qdrant.Distance {
	switch d {
	case Cosine:
		return qdrant.Distance_Cosine
	default:
		return qdrant.Distance_Cosine
	}
}

// CreateCollection provisions a Qdrant collection with HNSW tuned for
// the given dimension. Already-exists is treated as success.
func (q *QdrantStore) CreateCollection(ctx context.Context, name string, dim int, distance Distance) error {
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection exists: %w", err)
	}
	if exists {
		q.logger.Info("qdrant: collection already exists", "collection", name)
		return nil
	}

	m := uint64(16)
	efConstruct := uint64(128)

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: toQdrantDistance(distance),
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           &m,
				EfConstruct: &efConstruct,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection %q: %w", name, err)
	}

	q.logger.Info("qdrant: created collection", "collection", name, "dims", dim)
	return nil
}

// DeleteCollection deletes a Qdrant collection.
func (q *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	if err := q.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrCollectionNotFound, err)
	}
	return nil
}

// Upsert inserts or updates points.
func (q *QdrantStore) Upsert(ctx context.Context, collectionName string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectorsDense(p.Vector),
			Payload: qdrant.NewValueMap(map[string]any(p.Payload)),
		}
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: qdrant upsert %d points: %w", len(points), err)
	}
	return nil
}

func filterToConditions(filter Filter) []*qdrant.Condition {
	conds := make([]*qdrant.Condition, 0, len(filter))
	for field, matcher := range filter {
		switch m := matcher.(type) {
		case *Op:
			r := &qdrant.Range{}
			if f, ok := toFloat(m.Gte); ok {
				r.Gte = qdrant.PtrOf(f)
			}
			if f, ok := toFloat(m.Lte); ok {
				r.Lte = qdrant.PtrOf(f)
			}
			if f, ok := toFloat(m.Gt); ok {
				r.Gt = qdrant.PtrOf(f)
			}
			if f, ok := toFloat(m.Lt); ok {
				r.Lt = qdrant.PtrOf(f)
			}
			conds = append(conds, qdrant.NewRange(field, r))
			if len(m.In) > 0 {
				keywords := make([]string, 0, len(m.In))
				for _, v := range m.In {
					if s, ok := v.(string); ok {
						keywords = append(keywords, s)
					}
				}
				if len(keywords) > 0 {
					conds = append(conds, qdrant.NewMatchKeywords(field, keywords...))
				}
			}
		case string:
			conds = append(conds, qdrant.NewMatch(field, m))
		case float64:
			conds = append(conds, qdrant.NewRange(field, &qdrant.Range{Gte: qdrant.PtrOf(m), Lte: qdrant.PtrOf(m)}))
		}
	}
	return conds
}

// Search queries Qdrant for the nearest points to query, after
// applying filter. Results are ordered by score descending.
func (q *QdrantStore) Search(ctx context.Context, collectionName string, query []float32, limit int, filter Filter) ([]Scored, error) {
	must := filterToConditions(filter)

	fetchLimit := uint64(limit)
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collectionName,
		Query:          qdrant.NewQueryDense(query),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &fetchLimit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: qdrant query: %w", err)
	}

	results := make([]Scored, 0, len(scored))
	for _, sp := range scored {
		id := sp.Id.GetUuid()
		if id == "" {
			id = strconv.FormatUint(sp.Id.GetNum(), 10)
		}
		results = append(results, Scored{
			Point: Point{ID: id, Payload: qdrantStructToPayload(sp.Payload)},
			Score: sp.Score,
		})
	}
	return results, nil
}

// Scroll returns a page of points matching filter.
func (q *QdrantStore) Scroll(ctx context.Context, collectionName string, limit int, filter Filter, withVectors bool) ([]Point, error) {
	must := filterToConditions(filter)

	lim := uint32(limit)
	resp, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collectionName,
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &lim,
		WithVectors:    qdrant.NewWithVectors(withVectors),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: qdrant scroll: %w", err)
	}

	out := make([]Point, 0, len(resp))
	for _, rp := range resp {
		id := rp.Id.GetUuid()
		if id == "" {
			id = strconv.FormatUint(rp.Id.GetNum(), 10)
		}
		p := Point{ID: id, Payload: qdrantStructToPayload(rp.Payload)}
		if withVectors && rp.Vectors != nil {
			p.Vector = rp.Vectors.GetVector().GetData()
		}
		out = append(out, p)
	}
	return out, nil
}

// Count returns the number of points matching filter.
func (q *QdrantStore) Count(ctx context.Context, collectionName string, filter Filter) (int, error) {
	must := filterToConditions(filter)
	resp, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collectionName,
		Filter:         &qdrant.Filter{Must: must},
	})
	if err != nil {
		return 0, fmt.Errorf("vectorstore: qdrant count: %w", err)
	}
	return int(resp), nil
}

// Get fetches a single point by id.
func (q *QdrantStore) Get(ctx context.Context, collectionName string, id string, withVector bool) (*Point, error) {
	resp, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collectionName,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithVectors:    qdrant.NewWithVectors(withVector),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: qdrant get: %w", err)
	}
	if len(resp) == 0 {
		return nil, nil
	}
	rp := resp[0]
	p := Point{ID: id, Payload: qdrantStructToPayload(rp.Payload)}
	if withVector && rp.Vectors != nil {
		p.Vector = rp.Vectors.GetVector().GetData()
	}
	return &p, nil
}

// Delete removes a point by id. Idempotent.
func (q *QdrantStore) Delete(ctx context.Context, collectionName string, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collectionName,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{qdrant.NewID(id)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: qdrant delete: %w", err)
	}
	return nil
}

// Close shuts down the Qdrant gRPC connection.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}

func qdrantStructToPayload(m map[string]*qdrant.Value) Payload {
	out := make(Payload, len(m))
	for k, v := range m {
		out[k] = qdrantValueToAny(v)
	}
	return out
}

func qdrantValueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}
