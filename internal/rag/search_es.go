package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/equipdesk/backend-go/internal/config"
)

// ElasticsearchSearcher 基于ES的降级文本检索
// 命中同样赋予固定合成相似度，与数据库实现保持一致的结果形状
type ElasticsearchSearcher struct {
	client *elasticsearch.Client
	index  string
	score  float64

	mu      sync.Mutex
	created bool
}

// NewElasticsearchSearcher 创建ES检索器
func NewElasticsearchSearcher(cfg config.ElasticsearchConfig, score float64) (FulltextSearcher, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch addresses not configured")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	index := cfg.Index
	if index == "" {
		index = "document_chunks"
	}
	if score == 0 {
		score = 0.6
	}

	return &ElasticsearchSearcher{
		client: client,
		index:  index,
		score:  score,
	}, nil
}

func (e *ElasticsearchSearcher) ensureIndex(ctx context.Context) error {
	e.mu.Lock()
	if e.created {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	existsReq := esapi.IndicesExistsRequest{Index: []string{e.index}}
	resp, err := existsReq.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == 200 {
		e.mu.Lock()
		e.created = true
		e.mu.Unlock()
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"document_id": map[string]interface{}{"type": "keyword"},
				"chunk_index": map[string]interface{}{"type": "integer"},
				"content":     map[string]interface{}{"type": "text"},
				"filename":    map[string]interface{}{"type": "keyword"},
			},
		},
	}
	body, _ := json.Marshal(mapping)
	createReq := esapi.IndicesCreateRequest{
		Index: e.index,
		Body:  bytes.NewReader(body),
	}
	createResp, err := createReq.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer createResp.Body.Close()

	if createResp.IsError() {
		return fmt.Errorf("create index error: %s", createResp.String())
	}

	e.mu.Lock()
	e.created = true
	e.mu.Unlock()
	return nil
}

func (e *ElasticsearchSearcher) IndexChunks(ctx context.Context, documentID uint, chunks []IndexableChunk) error {
	if e.client == nil {
		return nil
	}
	if err := e.ensureIndex(ctx); err != nil {
		return err
	}

	for _, chunk := range chunks {
		doc := map[string]interface{}{
			"document_id": documentID,
			"chunk_index": chunk.ChunkIndex,
			"content":     chunk.Content,
			"filename":    chunk.Filename,
		}
		payload, _ := json.Marshal(doc)
		req := esapi.IndexRequest{
			Index:      e.index,
			DocumentID: fmt.Sprintf("%d", chunk.ChunkID),
			Body:       bytes.NewReader(payload),
			Refresh:    "true",
		}
		resp, err := req.Do(ctx, e.client)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.IsError() {
			return fmt.Errorf("index chunk error: %s", resp.String())
		}
	}
	return nil
}

func (e *ElasticsearchSearcher) RemoveDocument(ctx context.Context, documentID uint) error {
	if e.client == nil {
		return nil
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"document_id": documentID,
			},
		},
	}
	body, _ := json.Marshal(query)
	req := esapi.DeleteByQueryRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("delete document error: %s", resp.String())
	}
	return nil
}

func (e *ElasticsearchSearcher) Search(ctx context.Context, req FulltextSearchRequest) ([]SearchMatch, error) {
	if e.client == nil {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	body := map[string]interface{}{
		"size": req.Limit,
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"content": map[string]interface{}{
					"query": req.Term,
				},
			},
		},
	}

	payload, _ := json.Marshal(body)
	searchReq := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(payload),
	}

	resp, err := searchReq.Do(ctx, e.client)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, fmt.Errorf("search error: %s", resp.String())
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	rawHits, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, nil
	}

	matches := make([]SearchMatch, 0, len(rawHits))
	for _, raw := range rawHits {
		hit, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		idStr, _ := hit["_id"].(string)
		source, _ := hit["_source"].(map[string]interface{})
		content, _ := source["content"].(string)
		filename, _ := source["filename"].(string)
		documentID := parseUint(fmt.Sprintf("%v", source["document_id"]))

		matches = append(matches, SearchMatch{
			ChunkID:    uint(parseUint(idStr)),
			DocumentID: uint(documentID),
			Content:    content,
			Filename:   filename,
			Similarity: e.score,
		})
	}
	return matches, nil
}

func (e *ElasticsearchSearcher) Ready() bool {
	return e.client != nil
}

func parseUint(value string) uint64 {
	value = strings.TrimSpace(value)
	var id uint64
	fmt.Sscanf(value, "%d", &id)
	return id
}
