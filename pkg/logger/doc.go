// Package logger builds configured slog loggers with consistent output
// formats, static service attributes, and context-aware enrichment.
//
//	log := logger.New(
//		logger.WithProduction("sessiond"),
//		logger.WithContextExtractors(requestIDExtractor),
//	)
//	log.InfoContext(ctx, "session persisted", logger.SessionID(id))
//
// The defaults are production-safe: JSON at info level on stdout. Context
// extractors run at log time, so request-scoped values such as trace or
// request IDs appear on every record without threading them by hand.
package logger
