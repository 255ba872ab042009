package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"time"

	"github.com/docassist/docassist/internal/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const scrollPageSize = 256

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository mirrors embedded visits into a Qdrant collection and reads them back as a corpus.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository connects to local Qdrant (insecure) or Qdrant Cloud (TLS + API key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	if cfg.VectorDimension <= 0 {
		return nil, fmt.Errorf("qdrant: vector dimension must be positive")
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: cfg.VectorDimension,
	}, nil
}

// Collection returns the collection name.
func (r *QdrantRepository) Collection() string {
	return r.collectionName
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if missing and rejects one whose
// vector size differs from the provider dimension.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(r.vectorDimension) {
			return fmt.Errorf("%w: collection %s has vector size %d, expected %d",
				domain.ErrDimensionMismatch, r.collectionName, size, r.vectorDimension)
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil && single.GetSize() > 0 {
		return single.GetSize(), true
	}
	for _, params := range vectors.GetParamsMap().GetMap() {
		if params.GetSize() > 0 {
			return params.GetSize(), true
		}
	}
	return 0, false
}

// Upsert writes a visit's vector with its display metadata as payload.
// The point ID is the visit ID.
func (r *QdrantRepository) Upsert(ctx context.Context, item domain.CorpusItem, model string) error {
	uid, err := uuid.Parse(item.VisitID)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}
	if len(item.Vector) != r.vectorDimension {
		return fmt.Errorf("%w: got %d components, expected %d", domain.ErrDimensionMismatch, len(item.Vector), r.vectorDimension)
	}

	_, err = r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points: []*pb.PointStruct{
			{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: item.Vector},
					},
				},
				Payload: casePayload(item, model),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(i int) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(i)}}
}

func casePayload(item domain.CorpusItem, model string) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"visit_id":               stringValue(item.VisitID),
		"patient_age":            intValue(item.PatientAge),
		"patient_gender":         stringValue(item.PatientGender),
		"clinical_tests":         stringValue(item.ClinicalTests),
		"doctor_noticed":         stringValue(item.DoctorNoticed),
		"prescribed_medications": stringValue(item.PrescribedMedications),
		"blood_pressure":         stringValue(item.Vitals.BloodPressure),
		"oxygen":                 stringValue(item.Vitals.Oxygen),
		"weight":                 stringValue(item.Vitals.Weight),
		"embedding_model":        stringValue(model),
		"embedding_dim":          intValue(len(item.Vector)),
		"date":                   stringValue(item.Date.UTC().Format(time.RFC3339Nano)),
	}
	if item.Vitals.DidRecover != nil {
		payload["did_recover"] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: *item.Vitals.DidRecover}}
	}
	return payload
}

func parseCasePayload(payload map[string]*pb.Value) domain.CorpusItem {
	item := domain.CorpusItem{
		VisitID:               payload["visit_id"].GetStringValue(),
		PatientAge:            int(payload["patient_age"].GetIntegerValue()),
		PatientGender:         payload["patient_gender"].GetStringValue(),
		ClinicalTests:         payload["clinical_tests"].GetStringValue(),
		DoctorNoticed:         payload["doctor_noticed"].GetStringValue(),
		PrescribedMedications: payload["prescribed_medications"].GetStringValue(),
		Vitals: domain.Vitals{
			BloodPressure: payload["blood_pressure"].GetStringValue(),
			Oxygen:        payload["oxygen"].GetStringValue(),
			Weight:        payload["weight"].GetStringValue(),
		},
	}
	if v, ok := payload["did_recover"]; ok {
		recovered := v.GetBoolValue()
		item.Vitals.DidRecover = &recovered
	}
	if ts, err := time.Parse(time.RFC3339Nano, payload["date"].GetStringValue()); err == nil {
		item.Date = ts
	}
	return item
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func integerCondition(key string, value int) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(value)}},
			},
		},
	}
}

// ListWithEmbedding scrolls every point stamped with filter.Model and
// filter.Dim and returns them ordered by visit date, then visit ID.
// Doctor and patient scoping are not stored in the payload and are ignored.
func (r *QdrantRepository) ListWithEmbedding(ctx context.Context, filter domain.CorpusFilter) ([]domain.CorpusItem, error) {
	limit := uint32(scrollPageSize)
	req := &pb.ScrollPoints{
		CollectionName: r.collectionName,
		Filter: &pb.Filter{
			Must: []*pb.Condition{
				keywordCondition("embedding_model", filter.Model),
				integerCondition("embedding_dim", filter.Dim),
			},
		},
		Limit: &limit,
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		WithVectors: &pb.WithVectorsSelector{
			SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true},
		},
	}

	var items []domain.CorpusItem
	for {
		resp, err := r.pointsClient.Scroll(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}

		for _, point := range resp.GetResult() {
			item := parseCasePayload(point.GetPayload())
			if item.VisitID == "" || item.VisitID == filter.ExcludeVisitID {
				continue
			}
			item.Vector = point.GetVectors().GetVector().GetData()
			if len(item.Vector) != filter.Dim {
				continue
			}
			items = append(items, item)
		}

		next := resp.GetNextPageOffset()
		if next == nil {
			break
		}
		req.Offset = next
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.Before(items[j].Date)
		}
		return items[i].VisitID < items[j].VisitID
	})
	return items, nil
}

// Delete deletes a visit's point.
func (r *QdrantRepository) Delete(ctx context.Context, visitID string) error {
	uid, err := uuid.Parse(visitID)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}

	_, err = r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{
						{PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}
	return nil
}
