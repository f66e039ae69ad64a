package service

import (
	"context"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/util"
	"edu_exam_backend/pkg/logger"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ExamDefinition 考试及其有序题目、选项。
// Exam 每次从数据库读取，缓存只保存 Questions。
type ExamDefinition struct {
	Exam      model.Exam           `json:"exam"`
	Questions []QuestionDefinition `json:"questions"`
}

type QuestionDefinition struct {
	model.ExamQuestion
	Options []model.MultipleChoiceOption `json:"options"`
}

// Question 按 ID 查找题目
func (d *ExamDefinition) Question(questionID uint) (*QuestionDefinition, bool) {
	for i := range d.Questions {
		if d.Questions[i].ID == questionID {
			return &d.Questions[i], true
		}
	}
	return nil, false
}

// MaxScore 全部题目分值之和
func (d *ExamDefinition) MaxScore() int {
	total := 0
	for _, q := range d.Questions {
		total += q.Points
	}
	return total
}

// DefinitionCache 考试题目与选项的 Redis 读穿缓存。
// 零值或 nil 客户端时所有操作为空操作，Redis 故障按未命中处理。
//
// 每场考试有一个代数计数器：Invalidate 先递增代数再删除条目，
// Set 只在代数与读库前取得的值一致时写入，避免失效后回填旧数据。
type DefinitionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NoGeneration 缓存不可用时的代数，Set 见到它直接放弃写入
const NoGeneration int64 = -1

var errGenerationChanged = errors.New("definition generation changed")

func NewDefinitionCache(rdb *redis.Client, ttl time.Duration) *DefinitionCache {
	return &DefinitionCache{rdb: rdb, ttl: ttl}
}

func (c *DefinitionCache) enabled() bool {
	return c != nil && c.rdb != nil
}

func definitionKey(examID uint) string {
	return util.ExamQuestionsCachePrefix + strconv.FormatUint(uint64(examID), 10)
}

func generationKey(examID uint) string {
	return util.ExamQuestionsGenerationKey + strconv.FormatUint(uint64(examID), 10)
}

// Generation 读库之前调用，结果传给 Set
func (c *DefinitionCache) Generation(ctx context.Context, examID uint) int64 {
	if !c.enabled() {
		return NoGeneration
	}
	gen, err := c.rdb.Get(ctx, generationKey(examID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		logger.Log.Warn("Definition cache generation read failed", zap.Uint("exam_id", examID), zap.Error(err))
		return NoGeneration
	}
	return gen
}

func (c *DefinitionCache) Get(ctx context.Context, examID uint) ([]QuestionDefinition, bool) {
	if !c.enabled() {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, definitionKey(examID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.Warn("Definition cache read failed", zap.Uint("exam_id", examID), zap.Error(err))
		}
		return nil, false
	}
	var questions []QuestionDefinition
	if err := json.Unmarshal(data, &questions); err != nil {
		logger.Log.Warn("Definition cache entry corrupt", zap.Uint("exam_id", examID), zap.Error(err))
		c.Invalidate(ctx, examID)
		return nil, false
	}
	return questions, true
}

// Set 在 WATCH 代数键的事务里写入；代数已变化说明期间有写入，放弃本次回填
func (c *DefinitionCache) Set(ctx context.Context, examID uint, questions []QuestionDefinition, gen int64) {
	if !c.enabled() || gen == NoGeneration {
		return
	}
	data, err := json.Marshal(questions)
	if err != nil {
		logger.Log.Warn("Definition cache encode failed", zap.Uint("exam_id", examID), zap.Error(err))
		return
	}

	genKey := generationKey(examID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errGenerationChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, definitionKey(examID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errGenerationChanged), errors.Is(err, redis.TxFailedErr):
		logger.Log.Debug("Definition cache fill skipped, definition changed", zap.Uint("exam_id", examID))
	default:
		logger.Log.Warn("Definition cache write failed", zap.Uint("exam_id", examID), zap.Error(err))
	}
}

// Invalidate 在数据库写入提交之后调用
func (c *DefinitionCache) Invalidate(ctx context.Context, examID uint) {
	if !c.enabled() {
		return
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(examID))
		pipe.Del(ctx, definitionKey(examID))
		return nil
	})
	if err != nil {
		logger.Log.Warn("Definition cache invalidate failed", zap.Uint("exam_id", examID), zap.Error(err))
	}
}
