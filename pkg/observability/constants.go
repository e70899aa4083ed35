package observability

const (
	AttrServiceName     = "service.name"
	AttrChatMode        = "chat.mode"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrToolFunction    = "tool.function"
	AttrToolServer      = "tool.server"
	AttrCollection      = "rag.collection"
	AttrErrorType       = "error.type"
	AttrHTTPMethod      = "http.method"
	AttrHTTPPath        = "http.path"
	AttrHTTPStatusCode  = "http.status_code"

	SpanChatRequest    = "chat.request"
	SpanLLMRequest     = "chat.llm_request"
	SpanRetrieval      = "chat.retrieval"
	SpanToolInvocation = "chat.tool_invocation"
	SpanHTTPRequest    = "http.request"

	DefaultServiceName = "medquery"
)
