package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes shared by every module.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeTimeout            ErrorCode = "COMMON_005"
	ErrCodeValidation         ErrorCode = "COMMON_006"
	ErrCodeSerialization      ErrorCode = "COMMON_007"
	ErrCodeDatabaseError      ErrorCode = "COMMON_008"
	ErrCodeCacheError         ErrorCode = "COMMON_009"
	ErrCodeExternalService    ErrorCode = "COMMON_010"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_011"
	ErrCodeNotImplemented     ErrorCode = "COMMON_012"
)

// Candidate-representation error codes.
const (
	// ErrCodeCandidateInvalid marks a payload that violates representation
	// constraints (illegal alphabet symbol, empty sequence). Never retried.
	ErrCodeCandidateInvalid   ErrorCode = "CAND_001"
	ErrCodeCandidateNotFound  ErrorCode = "CAND_002"
	ErrCodeCandidateDuplicate ErrorCode = "CAND_003"
	ErrCodePopulationEmpty    ErrorCode = "CAND_004"
	ErrCodePopulationCapacity ErrorCode = "CAND_005"
)

// Score-cache error codes.
const (
	// ErrCodeCacheInconsistent signals a non-deterministic oracle: a key that
	// already holds a SUCCESS score received a conflicting Put. Fatal to the run.
	ErrCodeCacheInconsistent ErrorCode = "CACHE_001"
	ErrCodeCacheMiss         ErrorCode = "CACHE_002"
	ErrCodeCacheUnavailable  ErrorCode = "CACHE_003"
)

// Scoring-oracle error codes.
const (
	ErrCodeOracleUnavailable ErrorCode = "ORACLE_001"
	ErrCodeOracleTimeout     ErrorCode = "ORACLE_002"
	ErrCodeOracleRejected    ErrorCode = "ORACLE_003"
	ErrCodeOracleTransient   ErrorCode = "ORACLE_004"
)

// Search-controller error codes.
const (
	ErrCodeRunNotFound       ErrorCode = "SEARCH_001"
	ErrCodeRunStateInvalid   ErrorCode = "SEARCH_002"
	ErrCodeBudgetExhausted   ErrorCode = "SEARCH_003"
	ErrCodeRunCancelled      ErrorCode = "SEARCH_004"
	ErrCodeSnapshotCorrupt   ErrorCode = "SEARCH_005"
	ErrCodeStrategyExhausted ErrorCode = "SEARCH_006"
)

// Proposal-strategy error codes.
const (
	ErrCodeStrategyUnsupported ErrorCode = "STRAT_001"
	ErrCodeSamplerUnavailable  ErrorCode = "STRAT_002"
)

// Aliases used throughout the codebase for readability at call sites.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeUnknown      = ErrorCode("UNKNOWN")
	CodeOK           = ErrorCode("OK")
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes for the API layer.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeCandidateInvalid:   http.StatusBadRequest,
	ErrCodeCandidateNotFound:  http.StatusNotFound,
	ErrCodeCandidateDuplicate: http.StatusConflict,
	ErrCodePopulationEmpty:    http.StatusUnprocessableEntity,
	ErrCodePopulationCapacity: http.StatusUnprocessableEntity,

	ErrCodeCacheInconsistent: http.StatusInternalServerError,
	ErrCodeCacheMiss:         http.StatusNotFound,
	ErrCodeCacheUnavailable:  http.StatusServiceUnavailable,

	ErrCodeOracleUnavailable: http.StatusServiceUnavailable,
	ErrCodeOracleTimeout:     http.StatusGatewayTimeout,
	ErrCodeOracleRejected:    http.StatusBadRequest,
	ErrCodeOracleTransient:   http.StatusServiceUnavailable,

	ErrCodeRunNotFound:       http.StatusNotFound,
	ErrCodeRunStateInvalid:   http.StatusConflict,
	ErrCodeBudgetExhausted:   http.StatusOK,
	ErrCodeRunCancelled:      http.StatusOK,
	ErrCodeSnapshotCorrupt:   http.StatusInternalServerError,
	ErrCodeStrategyExhausted: http.StatusOK,

	ErrCodeStrategyUnsupported: http.StatusBadRequest,
	ErrCodeSamplerUnavailable:  http.StatusServiceUnavailable,
}

// ErrorCodeMessage maps ErrorCodes to default human-readable messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTimeout:            "operation timed out",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeCandidateInvalid:   "candidate payload violates representation constraints",
	ErrCodeCandidateNotFound:  "candidate not found",
	ErrCodeCandidateDuplicate: "candidate already present in generation",
	ErrCodePopulationEmpty:    "population is empty",
	ErrCodePopulationCapacity: "population capacity exceeded",

	ErrCodeCacheInconsistent: "conflicting score for already-scored candidate",
	ErrCodeCacheMiss:         "score cache miss",
	ErrCodeCacheUnavailable:  "score cache unavailable",

	ErrCodeOracleUnavailable: "scoring oracle unavailable",
	ErrCodeOracleTimeout:     "scoring oracle call timed out",
	ErrCodeOracleRejected:    "candidate rejected by scoring oracle",
	ErrCodeOracleTransient:   "transient scoring oracle fault",

	ErrCodeRunNotFound:       "search run not found",
	ErrCodeRunStateInvalid:   "invalid search run state transition",
	ErrCodeBudgetExhausted:   "evaluation budget exhausted",
	ErrCodeRunCancelled:      "search run cancelled",
	ErrCodeSnapshotCorrupt:   "run snapshot is corrupt",
	ErrCodeStrategyExhausted: "proposal strategy exhausted",

	ErrCodeStrategyUnsupported: "unsupported proposal strategy",
	ErrCodeSamplerUnavailable:  "generative sampler unavailable",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// ModuleForCode returns the module prefix of an ErrorCode ("CAND", "ORACLE", ...).
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
