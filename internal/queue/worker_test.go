package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/graph"
	"github.com/knosphere/backend/pkg/store/memory"

	"github.com/rabbitmq/amqp091-go"
)

type stubAI struct {
	ai.Client
	embedding []float32
	embedErr  error
}

func (s *stubAI) GenerateEmbedding(_ context.Context, _ []byte) ([]float32, error) {
	return s.embedding, s.embedErr
}

func (s *stubAI) GenerateCompletionWithFormat(
	_ context.Context, name string, _ string, _ string, out any, _ ...ai.GenerateOption,
) error {
	if name == "entity_extraction" {
		return json.Unmarshal([]byte(`{"entities": [
			{"name": "Alan Turing", "type": "PERSON", "description": "", "confidence": 0.9}
		]}`), out)
	}
	return errors.New("unscripted call " + name)
}

func newTestWorker(t *testing.T, st *memory.Store, mock *stubAI) *Worker {
	t.Helper()
	extractor, err := graph.NewExtractor(graph.Params{AI: mock, Store: st})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	w, err := NewWorker(WorkerParams{Store: st, AI: mock, Extractor: extractor})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return w
}

func jobBody(t *testing.T, job ExtractJob) []byte {
	t.Helper()
	body, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return body
}

func TestProcessJob(t *testing.T) {
	st := memory.NewStore()
	doc := &common.Document{
		ID:      "doc-1",
		Title:   "T",
		Content: "Alan Turing worked on early computers. " + strings.Repeat("More context. ", 10),
		OwnerID: "alice",
	}
	if err := st.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}

	w := newTestWorker(t, st, &stubAI{embedding: []float32{0.1, 0.2}})
	if err := w.processJob(context.Background(), jobBody(t, ExtractJob{DocumentID: "doc-1", OwnerID: "alice"})); err != nil {
		t.Fatalf("process job: %v", err)
	}

	stored, err := st.GetDocument(context.Background(), "doc-1", "alice")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if stored.Embedding == nil {
		t.Error("embedding not persisted")
	}
	if !stored.GraphExtracted {
		t.Error("document not marked as extracted")
	}
	if st.CountEntities("alice") != 1 {
		t.Errorf("entity count = %d, want 1", st.CountEntities("alice"))
	}
}

func TestProcessJobErrors(t *testing.T) {
	st := memory.NewStore()
	w := newTestWorker(t, st, &stubAI{embedding: []float32{0.1}})

	t.Run("malformed payload", func(t *testing.T) {
		if err := w.processJob(context.Background(), []byte("not json")); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing ids", func(t *testing.T) {
		if err := w.processJob(context.Background(), jobBody(t, ExtractJob{})); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		body := jobBody(t, ExtractJob{DocumentID: "missing", OwnerID: "alice"})
		if err := w.processJob(context.Background(), body); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("embedding failure", func(t *testing.T) {
		failing := newTestWorker(t, st, &stubAI{embedErr: errors.New("provider down")})
		doc := &common.Document{
			ID: "doc-2", Title: "T", OwnerID: "alice",
			Content: strings.Repeat("content ", 20),
		}
		if err := st.CreateDocument(context.Background(), doc); err != nil {
			t.Fatalf("create document: %v", err)
		}
		body := jobBody(t, ExtractJob{DocumentID: "doc-2", OwnerID: "alice"})
		if err := failing.processJob(context.Background(), body); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestRetryCount(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp091.Table
		want    int
	}{
		{"nil headers", nil, 0},
		{"missing key", amqp091.Table{}, 0},
		{"int32", amqp091.Table{"x-retries": int32(2)}, 2},
		{"int64", amqp091.Table{"x-retries": int64(3)}, 3},
		{"wrong type", amqp091.Table{"x-retries": "2"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryCount(tt.headers); got != tt.want {
				t.Errorf("retryCount = %d, want %d", got, tt.want)
			}
		})
	}
}
