package errors

// Error codes attached to GatewayError values. Codes are stable strings so
// they can be persisted in the audit store and matched by the retry policy.
const (
	CodeRateLimited        = "RATE_LIMITED"
	CodeGatewayTimeout     = "GATEWAY_TIMEOUT"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodeMalformedResponse  = "MALFORMED_RESPONSE"
)

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            string
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[string]ErrorCodeInfo{
	CodeRateLimited: {
		Code:            CodeRateLimited,
		Retryable:       true,
		Description:     "Metrics gateway rate limit exceeded",
		SuggestedAction: "Retried automatically with backoff; reduce query breadth if persistent",
	},
	CodeGatewayTimeout: {
		Code:            CodeGatewayTimeout,
		Retryable:       true,
		Description:     "Gateway call exceeded its per-request deadline",
		SuggestedAction: "Check gateway health: epctl health",
	},
	CodeGatewayUnavailable: {
		Code:            CodeGatewayUnavailable,
		Retryable:       true,
		Description:     "Gateway returned a 5xx or was unreachable",
		SuggestedAction: "Check gateway URL in config and service status",
	},
	CodeBadRequest: {
		Code:            CodeBadRequest,
		Retryable:       false,
		Description:     "Gateway rejected the request parameters",
		SuggestedAction: "Inspect the failing sub-request parameters with --output json",
	},
	CodeNotFound: {
		Code:            CodeNotFound,
		Retryable:       false,
		Description:     "Tool or resource does not exist on the gateway",
		SuggestedAction: "Verify the tool name against the gateway's catalog",
	},
	CodeUnauthorized: {
		Code:            CodeUnauthorized,
		Retryable:       false,
		Description:     "API key missing or rejected for the client",
		SuggestedAction: "Store a valid key: epctl keys set <client-id>",
	},
	CodePreconditionFailed: {
		Code:            CodePreconditionFailed,
		Retryable:       false,
		Description:     "Request precondition not met; no gateway call was attempted",
		SuggestedAction: "Pass --metric-id on epctl query, or map the client in client_metrics in ~/.epctl/config.yaml",
	},
	CodeMalformedResponse: {
		Code:            CodeMalformedResponse,
		Retryable:       false,
		Description:     "Gateway response could not be decoded",
		SuggestedAction: "Inspect the raw response with --debug",
	},
}

// RetryableCode checks if an error code should trigger a retry.
func RetryableCode(code string) bool {
	info, ok := ErrorCodeRegistry[code]
	return ok && info.Retryable
}
