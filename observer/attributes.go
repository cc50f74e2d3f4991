package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for provider and tool observability spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")
	AttrLLMMethod   = attribute.Key("llm.method")

	AttrStepID   = attribute.Key("step.id")
	AttrStatus   = attribute.Key("status")

	AttrToolName         = attribute.Key("tool.name")
	AttrToolServerID     = attribute.Key("tool.server_id")
	AttrToolStatus       = attribute.Key("tool.status")
	AttrToolResultLength = attribute.Key("tool.result_length")
)
