// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"courseqa-go/internal/config"
	"courseqa-go/internal/model"
	"courseqa-go/pkg/database"
	"courseqa-go/pkg/log"
	"courseqa-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// IngestProcessor defines the interface for any service that can ingest a video.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type IngestProcessor interface {
	IngestVideo(ctx context.Context, videoID, tenantID, title string, transcript model.Transcript) (int, error)
}

// TranscriptFetcher 根据对象键取回转写稿（通常由 MinIO 实现）。
type TranscriptFetcher func(ctx context.Context, objectName string) (model.Transcript, error)

// Producer 向积分系统发布回答事件，尽力投递。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建奖励事件生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers),
			Topic:    cfg.RewardTopic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// NotifyAnswer 发送一条回答奖励事件。失败只记录日志，绝不影响聊天请求。
func (p *Producer) NotifyAnswer(event tasks.AnswerRewardEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(context.Background(), kafka.Message{Value: eventBytes})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理视频转写完成任务。
// 成功后手动提交 offset；连续失败达到阈值后放弃该消息，避免阻塞队列。
func StartConsumer(cfg config.KafkaConfig, fetch TranscriptFetcher, processor IngestProcessor) {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "courseqa-ingest-consumer"
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.IngestTopic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.IngestTopic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task tasks.VideoTranscribedTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始摄取视频: VideoID=%s, TenantID=%s", task.VideoID, task.TenantID)
		if err := processIngestTask(fetch, processor, task); err != nil {
			log.Errorf("视频摄取失败: VideoID=%s, Error: %v", task.VideoID, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("kafka:ingest:attempts:%s", task.VideoID)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("视频摄取多次失败(>=3)，提交 offset 终止重试: VideoID=%s", task.VideoID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
		} else {
			log.Infof("视频摄取成功: VideoID=%s", task.VideoID)
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("kafka:ingest:attempts:%s", task.VideoID)).Err()
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}

// processIngestTask 取回转写稿并执行一次完整摄取。
func processIngestTask(fetch TranscriptFetcher, processor IngestProcessor, task tasks.VideoTranscribedTask) error {
	ctx := context.Background()
	transcript, err := fetch(ctx, task.TranscriptKey)
	if err != nil {
		return fmt.Errorf("获取转写稿失败: %w", err)
	}
	count, err := processor.IngestVideo(ctx, task.VideoID, task.TenantID, task.Title, transcript)
	if err != nil {
		return err
	}
	log.Infof("视频 %s 共索引 %d 个分块", task.VideoID, count)
	return nil
}
