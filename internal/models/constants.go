package models

const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusDone       = "done"
	QueueStatusFailed     = "failed"
)

const (
	ReasonSeed      = "seed"
	ReasonTraffic   = "traffic"
	ReasonUserClick = "user_click"
)

const (
	FetchStatusOK       = "ok"
	FetchStatusNotFound = "not_found"
	FetchStatusError    = "error"
)

// reasonPriorities maps an enqueue reason to its default priority.
// Higher values dequeue first.
var reasonPriorities = map[string]int64{
	ReasonSeed:      0,
	ReasonTraffic:   0,
	ReasonUserClick: 50,
}

// ValidReason reports whether reason belongs to the closed set.
func ValidReason(reason string) bool {
	_, ok := reasonPriorities[reason]
	return ok
}

// DefaultPriority returns the priority assigned to a reason when the caller
// gives no explicit hint. Unknown reasons map to 0; callers are expected to
// validate with ValidReason first.
func DefaultPriority(reason string) int64 {
	return reasonPriorities[reason]
}

const (
	// DefaultBatchSize размер пачки за один проход процессора
	DefaultBatchSize = 10

	// DefaultMaxAttempts попыток обработки до терминального failed
	DefaultMaxAttempts = 3

	// DefaultStaleAfterMinutes сколько запись может висеть в processing
	DefaultStaleAfterMinutes = 30

	// DefaultSchedulerIntervalMinutes интервал планировщика
	DefaultSchedulerIntervalMinutes = 60

	// DefaultBudgetWarnPercent порог спенда для предупреждения
	DefaultBudgetWarnPercent = 80.0

	// ResultCacheTTL время жизни кэша результатов в Redis
	ResultCacheTTL = 60 * 60 // 1 час в секундах

	// RunLockTTL время жизни блокировки запуска процессора
	RunLockTTL = 15 * 60 // 15 минут в секундах
)
