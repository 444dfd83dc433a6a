package semantic

import (
	"context"
	"fmt"
	"sync"

	"github.com/WessleyAI/ragchat/engine/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
	CreateFieldIndex(ctx context.Context, in *pb.CreateFieldIndexCollection, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string

	mu         sync.Mutex
	vectorSize int
	ensured    bool
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
// vectorSize may be zero, in which case it is taken from the first upsert.
func New(addr, collection string, vectorSize int) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	vs := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, vectorSize)
	vs.conn = conn
	return vs, nil
}

// NewWithClients builds a VectorStore over existing clients.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string, vectorSize int) *VectorStore {
	return &VectorStore{
		points:      points,
		collections: collections,
		collection:  collection,
		vectorSize:  vectorSize,
	}
}

// Close closes the underlying gRPC connection, if the store owns one.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// Collection returns the collection name.
func (v *VectorStore) Collection() string { return v.collection }

// EnsureCollection creates the collection and its payload indexes if the
// collection doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ensureLocked(ctx, dims)
}

func (v *VectorStore) ensureLocked(ctx context.Context, dims int) error {
	if dims <= 0 {
		return domain.Errorf("semantic: ensure collection", domain.ErrStoreUnavailable, "invalid vector size %d", dims)
	}
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return storeErr("list collections", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			v.vectorSize, v.ensured = dims, true
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return storeErr("create collection "+v.collection, err)
	}

	indexes := []struct {
		field string
		typ   pb.FieldType
	}{
		{PayloadSource, pb.FieldType_FieldTypeKeyword},
		{PayloadText, pb.FieldType_FieldTypeText},
	}
	for _, idx := range indexes {
		_, err := v.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: v.collection,
			Wait:           proto.Bool(true),
			FieldName:      idx.field,
			FieldType:      idx.typ.Enum(),
		})
		if err != nil {
			return storeErr("index "+idx.field, err)
		}
	}
	v.vectorSize, v.ensured = dims, true
	return nil
}

// ResetCollection drops every record. The collection is recreated right away
// when its vector size is known, otherwise on the next upsert.
func (v *VectorStore) ResetCollection(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: v.collection})
	if err != nil && !isNotFound(err) {
		return storeErr("delete collection "+v.collection, err)
	}
	v.ensured = false
	if v.vectorSize > 0 {
		return v.ensureLocked(ctx, v.vectorSize)
	}
	return nil
}

// Upsert appends records to the collection, creating it on first use.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	v.mu.Lock()
	if !v.ensured {
		dims := v.vectorSize
		if dims == 0 {
			dims = len(records[0].Vector)
		}
		if err := v.ensureLocked(ctx, dims); err != nil {
			v.mu.Unlock()
			return err
		}
	}
	v.mu.Unlock()

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: id},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: map[string]*pb.Value{
				PayloadText:   stringValue(r.Text),
				PayloadSource: stringValue(r.Source),
			},
		}
	}

	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           proto.Bool(true),
		Points:         points,
	})
	if err != nil {
		return storeErr(fmt.Sprintf("upsert %d points", len(records)), err)
	}
	return nil
}

// Search performs k-NN similarity search. A missing collection yields no results.
func (v *VectorStore) Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		if isNotFound(err) {
			return []SearchResult{}, nil
		}
		return nil, storeErr("search", err)
	}

	results := make([]SearchResult, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		p := r.GetPayload()
		results = append(results, SearchResult{
			ID:     r.GetId().GetUuid(),
			Score:  r.GetScore(),
			Text:   p[PayloadText].GetStringValue(),
			Source: p[PayloadSource].GetStringValue(),
		})
	}
	return results, nil
}

// Count returns the exact number of points in the collection.
func (v *VectorStore) Count(ctx context.Context) (int, error) {
	resp, err := v.points.Count(ctx, &pb.CountPoints{
		CollectionName: v.collection,
		Exact:          proto.Bool(true),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, storeErr("count", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// storeErr tags any transport or server failure as ErrStoreUnavailable.
func storeErr(op string, err error) error {
	return domain.Wrap("semantic: "+op, domain.ErrStoreUnavailable, err)
}
