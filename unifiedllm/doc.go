// Package unifiedllm is the completion service of wand. It presents a
// provider-agnostic chat interface over gollm:
//
//   - Client routes Requests to registered ProviderAdapters and applies
//     middleware such as RetryMiddleware.
//   - Client.Complete returns a whole Response; Client.Stream returns a Stream
//     whose Next/Fragment pair yields text as the provider produces it.
//   - Client.ListModels and FetchModels enumerate usable models.
//
// Errors are typed (AuthenticationError, RateLimitError, ConfigurationError,
// ...) and IsRetryable classifies them for the retry policy.
//
// A Client is built explicitly from a Config and passed to its users; there is
// no package-level default.
package unifiedllm
