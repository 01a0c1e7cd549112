// Package llm wraps the OpenAI-compatible chat completion API used for
// summarization and publication generation. Providers are configured by
// base URL, so a DeepSeek primary and an OpenAI alternate share one
// client type. Structured responses go through a layered JSON recovery
// chain because models routinely wrap or mangle their JSON output.
package llm
