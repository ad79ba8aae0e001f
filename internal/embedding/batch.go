package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BatchProcessor 批量向量化接口
type BatchProcessor interface {
	// Process 批量生成向量，结果与输入顺序一一对应
	Process(ctx context.Context, texts []string) ([][]float32, error)
}

// DefaultBatchProcessor 把大批文本切成小批并行向量化
type DefaultBatchProcessor struct {
	client     Client
	batchSize  int // 单次API请求的文本数
	maxWorkers int // 并行请求数上限
}

// NewBatchProcessor 创建批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *DefaultBatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &DefaultBatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Process 批量生成向量，结果与输入顺序一一对应
// 空文本不发给API，对应位置返回nil
func (p *DefaultBatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// 空文本跳过，记住非空文本的原始位置
	nonEmpty := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		if text != "" {
			nonEmpty = append(nonEmpty, text)
			positions = append(positions, i)
		}
	}

	results := make([][]float32, len(texts))
	if len(nonEmpty) == 0 {
		return results, nil
	}

	batches := splitIntoBatches(nonEmpty, p.batchSize)
	batchVectors := make([][][]float32, len(batches))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			vectors, err := p.client.EmbedBatch(ctx, batch)
			if err != nil {
				return fmt.Errorf("batch %d processing error: %w", i, err)
			}
			batchVectors[i] = vectors
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 按批次顺序摆回原始位置
	idx := 0
	for _, vectors := range batchVectors {
		for _, vector := range vectors {
			results[positions[idx]] = vector
			idx++
		}
	}

	return results, nil
}

// splitIntoBatches 按批次大小切分文本列表
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
