package config

import "fmt"

// CacheKeyStruct builds Redis key names used by the exam cache.
type CacheKeyStruct struct{}

// ExamPayloadKey returns the cache key for the student-facing exam payload.
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamSolutionKey returns the cache key for an exam's solution key hash.
func (r *CacheKeyStruct) ExamSolutionKey(examID string) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

var CacheKey = &CacheKeyStruct{}

// WorkerKeyStruct names the Redis queues drained by background workers.
type WorkerKeyStruct struct {
	PersistResultsQueue    string
	PersistViolationsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistResultsQueue:    "persist_results_queue",
	PersistViolationsQueue: "persist_violations_queue",
}
