package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sightline-ai/sightline/engine/domain"
)

// pointsAPI is the slice of the Qdrant points service this index uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the slice of the Qdrant collections service this index uses.
type collectionsAPI interface {
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	ListAliases(ctx context.Context, in *pb.ListAliasesRequest, opts ...grpc.CallOption) (*pb.ListAliasesResponse, error)
	UpdateAliases(ctx context.Context, in *pb.ChangeAliases, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantIndex is the remote alternative to MemoryIndex: the corpus lives in a
// Qdrant collection, one point per sighting with the full record as payload.
// The configured collection name is an alias. Each rebuild loads a fresh
// generation collection and repoints the alias in one atomic request, so
// concurrent queries resolve to either the old or the new generation, matching
// the swap-wholesale lifecycle of the in-memory corpus.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	alias       string
	embedder    Embedder
	logger      *slog.Logger

	rebuildMu sync.Mutex
	meta      atomic.Pointer[indexMeta]
}

// indexMeta is the locally tracked summary of the last rebuild.
type indexMeta struct {
	count     int
	locations []string
}

// NewQdrantIndex connects to Qdrant at the given gRPC address.
func NewQdrantIndex(addr, collection string, embedder Embedder, logger *slog.Logger) (*QdrantIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	idx := newQdrantWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, embedder, logger)
	idx.conn = conn
	return idx, nil
}

func newQdrantWithClients(points pointsAPI, collections collectionsAPI, collection string, embedder Embedder, logger *slog.Logger) *QdrantIndex {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &QdrantIndex{
		points:      points,
		collections: collections,
		alias:       collection,
		embedder:    embedder,
		logger:      logger,
	}
	idx.meta.Store(&indexMeta{})
	return idx
}

// Close closes the underlying gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// Rebuild loads a new generation collection and publishes it by repointing the
// alias, then drops the superseded generation. Queries in flight keep
// resolving the alias to whichever generation it pointed at when they arrived.
func (q *QdrantIndex) Rebuild(ctx context.Context, records []domain.SightingRecord) error {
	q.rebuildMu.Lock()
	defer q.rebuildMu.Unlock()

	recs := make([]domain.SightingRecord, len(records))
	texts := make([]string, len(records))
	locSet := make(map[string]bool)
	for i, rec := range records {
		rec = rec.Normalize()
		recs[i] = rec
		texts[i] = Describe(rec)
		locSet[rec.Location] = true
	}

	var vectors [][]float32
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		vecs, err := q.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("semantic: embed documents [%d:%d]: %w",
				start, end, errors.Join(domain.ErrEmbedderUnavailable, err))
		}
		vectors = append(vectors, vecs...)
	}

	if len(recs) == 0 {
		// Publish the empty corpus first so readers short-circuit before the
		// old generation disappears.
		q.meta.Store(&indexMeta{})
		previous, err := q.swapAlias(ctx, "")
		if err != nil {
			return err
		}
		q.dropGeneration(ctx, previous)
		q.logger.Info("qdrant index rebuilt", "alias", q.alias, "records", 0)
		return nil
	}

	generation := fmt.Sprintf("%s_%d", q.alias, time.Now().UnixNano())
	if err := q.createCollection(ctx, generation, len(vectors[0])); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(recs))
	for i, rec := range recs {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewString()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vectors[i]},
				},
			},
			Payload: recordPayload(rec, texts[i]),
		}
	}
	wait := true
	if _, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: generation,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}

	previous, err := q.swapAlias(ctx, generation)
	if err != nil {
		return err
	}

	locations := make([]string, 0, len(locSet))
	for loc := range locSet {
		locations = append(locations, loc)
	}
	sort.Strings(locations)
	q.meta.Store(&indexMeta{count: len(recs), locations: locations})

	q.dropGeneration(ctx, previous)
	q.logger.Info("qdrant index rebuilt", "alias", q.alias, "collection", generation, "records", len(recs))
	return nil
}

func (q *QdrantIndex) createCollection(ctx context.Context, name string, dims int) error {
	d := uint64(dims)
	if _, err := q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	}); err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", name, err)
	}
	return nil
}

// swapAlias repoints the alias at generation (or just removes it when
// generation is empty) in a single aliases request. Returns the collection the
// alias pointed at before, "" when it did not exist.
func (q *QdrantIndex) swapAlias(ctx context.Context, generation string) (string, error) {
	resp, err := q.collections.ListAliases(ctx, &pb.ListAliasesRequest{})
	if err != nil {
		return "", fmt.Errorf("semantic: list aliases: %w", err)
	}
	var previous string
	var actions []*pb.AliasOperations
	for _, a := range resp.GetAliases() {
		if a.GetAliasName() == q.alias {
			previous = a.GetCollectionName()
			actions = append(actions, &pb.AliasOperations{
				Action: &pb.AliasOperations_DeleteAlias{
					DeleteAlias: &pb.DeleteAlias{AliasName: q.alias},
				},
			})
			break
		}
	}
	if generation != "" {
		actions = append(actions, &pb.AliasOperations{
			Action: &pb.AliasOperations_CreateAlias{
				CreateAlias: &pb.CreateAlias{CollectionName: generation, AliasName: q.alias},
			},
		})
	}
	if len(actions) == 0 {
		return previous, nil
	}
	if _, err := q.collections.UpdateAliases(ctx, &pb.ChangeAliases{Actions: actions}); err != nil {
		return "", fmt.Errorf("semantic: swap alias %s: %w", q.alias, err)
	}
	return previous, nil
}

// dropGeneration deletes a superseded generation collection. Best effort: the
// alias no longer resolves to it, so a failed drop only leaks storage.
func (q *QdrantIndex) dropGeneration(ctx context.Context, name string) {
	if name == "" {
		return
	}
	if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		q.logger.Warn("drop superseded collection failed", "collection", name, "err", err)
	}
}

// Query embeds the query text and runs k-NN search with payload retrieval.
func (q *QdrantIndex) Query(ctx context.Context, query string, k int) ([]Hit, error) {
	if q.Count() == 0 || k <= 0 {
		return nil, nil
	}

	qv, err := q.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("semantic: embed query: %w",
			errors.Join(domain.ErrEmbedderUnavailable, err))
	}

	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.alias,
		Vector:         qv,
		Limit:          uint64(k),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		rec, err := recordFromPayload(r.GetPayload())
		if err != nil {
			q.logger.Warn("skipping malformed point", "id", r.GetId().GetUuid(), "err", err)
			continue
		}
		score := float64(r.GetScore())
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		hits = append(hits, Hit{Record: rec, Score: score})
	}
	return hits, nil
}

// Locations returns the distinct location values from the last rebuild.
func (q *QdrantIndex) Locations() []string {
	m := q.meta.Load()
	out := make([]string, len(m.locations))
	copy(out, m.locations)
	return out
}

// Count returns the number of records at the last rebuild.
func (q *QdrantIndex) Count() int {
	return q.meta.Load().count
}

func recordPayload(rec domain.SightingRecord, text string) map[string]*pb.Value {
	str := func(s string) *pb.Value {
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
	}
	return map[string]*pb.Value{
		"camera_id":    str(rec.CameraID),
		"camera_name":  str(rec.CameraName),
		"location":     str(rec.Location),
		"timestamp":    str(rec.TimestampText()),
		"vehicle_no":   str(rec.VehicleNo),
		"snapshotpath": str(rec.SnapshotPath),
		"videopath":    str(rec.VideoPath),
		"text":         str(text),
	}
}

func recordFromPayload(payload map[string]*pb.Value) (domain.SightingRecord, error) {
	get := func(key string) string {
		return payload[key].GetStringValue()
	}
	ts, err := time.ParseInLocation(domain.TimestampLayout, get("timestamp"), time.Local)
	if err != nil {
		return domain.SightingRecord{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return domain.SightingRecord{
		CameraID:     get("camera_id"),
		CameraName:   get("camera_name"),
		Location:     get("location"),
		Timestamp:    ts,
		VehicleNo:    get("vehicle_no"),
		SnapshotPath: get("snapshotpath"),
		VideoPath:    get("videopath"),
	}, nil
}
