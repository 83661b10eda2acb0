package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldHouseholdID = "household_id"
	FieldMemberID    = "member_id"
	FieldMovementID  = "movement_id"
	FieldCategoryID  = "category_id"
	FieldPeriod      = "period"
	FieldAmountCents = "amount_cents"
	FieldPolicy      = "policy"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentHTTP         = "http"
	ComponentStorage      = "storage"
	ComponentAMQP         = "amqp"
	ComponentWorker       = "worker"
	ComponentAuth         = "auth"
	ComponentMovement     = "movement"
	ComponentSalary       = "salary"
	ComponentDistribution = "distribution"
	ComponentBalance      = "balance"
	ComponentExport       = "export"
	ComponentCache        = "cache"
	ComponentSecurity     = "security"
	ComponentRateLimit    = "rate_limit"
	ComponentTrace        = "trace"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpRead      = "read"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpList      = "list"
	OpRecompute = "recompute"
	OpExport    = "export"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)
