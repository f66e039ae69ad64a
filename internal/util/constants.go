package util

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// gin 上下文键
const (
	ContextUserKey      = "user"
	ContextRequestIDKey = "request_id"
)

const RequestIDHeader = "X-Request-ID"

// 考试定义缓存
const (
	ExamQuestionsCachePrefix   = "exam:questions:"
	ExamQuestionsGenerationKey = "exam:questions:gen:"
)
