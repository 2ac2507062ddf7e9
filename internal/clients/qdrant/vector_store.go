package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/services"
	"github.com/dataflux/dataflux-backend/internal/utils"
)

const (
	refPrefix         = "qdrant://"
	maxErrorBodyBytes = 1024
)

type Config struct {
	URL        string
	Collection string
	VectorDim  int
}

func ConfigFromEnv(log *logger.Logger) Config {
	return Config{
		URL:        utils.GetEnv("QDRANT_URL", "", log),
		Collection: utils.GetEnv("QDRANT_COLLECTION", "dataflux-embeddings", log),
		VectorDim:  utils.GetEnvAsInt("QDRANT_VECTOR_DIM", 64, log),
	}
}

// vectorStore talks to Qdrant over its REST API. Points are keyed by the
// embedding row's UUID so refs can be resolved back without extra lookups.
type vectorStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

func NewVectorStore(log *logger.Logger, cfg Config) (services.VectorStore, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("missing QDRANT_URL")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("missing QDRANT_COLLECTION")
	}

	s := &vectorStore{
		log:     log.With("service", "QdrantVectorStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	if err := s.ensureCollection(context.Background()); err != nil {
		return nil, err
	}
	s.log.Info("Qdrant vector store selected",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
	)
	return s, nil
}

func (s *vectorStore) ensureCollection(ctx context.Context) error {
	err := s.doJSON(ctx, http.MethodGet, s.collectionPath(""), nil)
	if err == nil {
		return nil
	}
	// Collection bootstrap on first run.
	create := map[string]any{
		"vectors": map[string]any{
			"size":     s.cfg.VectorDim,
			"distance": "Cosine",
		},
	}
	if err := s.doJSON(ctx, http.MethodPut, s.collectionPath(""), create); err != nil {
		return fmt.Errorf("ensure collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

func (s *vectorStore) Upsert(ctx context.Context, id uuid.UUID, vector []float32) (string, error) {
	if len(vector) == 0 {
		return "", fmt.Errorf("vector is empty")
	}
	if s.cfg.VectorDim > 0 && len(vector) != s.cfg.VectorDim {
		return "", fmt.Errorf("vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(vector))
	}
	req := map[string]any{
		"points": []map[string]any{{
			"id":     id.String(),
			"vector": vector,
		}},
	}
	if err := s.doJSON(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), req); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s/%s", refPrefix, s.cfg.Collection, id), nil
}

func (s *vectorStore) Delete(ctx context.Context, ref string) error {
	rest, ok := strings.CutPrefix(ref, refPrefix)
	if !ok {
		return fmt.Errorf("unrecognized vector ref %q", ref)
	}
	collection, id, ok := strings.Cut(rest, "/")
	if !ok || collection != s.cfg.Collection {
		return fmt.Errorf("vector ref %q does not belong to collection %q", ref, s.cfg.Collection)
	}
	req := map[string]any{"points": []string{id}}
	return s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req)
}

func (s *vectorStore) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.baseURL, s.cfg.Collection, suffix)
}

func (s *vectorStore) doJSON(ctx context.Context, method, url string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("qdrant %s %s: status=%d body=%s", method, url, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
