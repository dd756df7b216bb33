package config

import (
	"os"
	"path/filepath"
	"testing"
)

func initFromYAML(t *testing.T, yaml string) Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}
	Init(path)
	return Conf
}

func TestInitAppliesDefaults(t *testing.T) {
	cfg := initFromYAML(t, "server:\n  port: \"8080\"\n")

	if cfg.RAG.ChunkWordBudget != 220 || cfg.RAG.MaxChunkSeconds != 120 {
		t.Fatalf("chunker defaults missing: %+v", cfg.RAG)
	}
	if cfg.RAG.TopK != 5 || cfg.RAG.MinSimilarity != 0.7 {
		t.Fatalf("retrieval defaults missing: %+v", cfg.RAG)
	}
	if cfg.Embedding.BatchSize != 96 || cfg.Embedding.Dimensions != 1536 {
		t.Fatalf("embedding defaults missing: %+v", cfg.Embedding)
	}
}

func TestInitKeepsExplicitZeroSimilarityThreshold(t *testing.T) {
	cfg := initFromYAML(t, "rag:\n  min_similarity: 0\n")

	// 显式配置的 0（不过滤）不能被默认值覆盖
	if cfg.RAG.MinSimilarity != 0 {
		t.Fatalf("explicit zero threshold overridden to %f", cfg.RAG.MinSimilarity)
	}
}

func TestInitKeepsExplicitThreshold(t *testing.T) {
	cfg := initFromYAML(t, "rag:\n  min_similarity: 0.85\n")
	if cfg.RAG.MinSimilarity != 0.85 {
		t.Fatalf("explicit threshold not honored: %f", cfg.RAG.MinSimilarity)
	}
}
