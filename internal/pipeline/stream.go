package pipeline

import (
	"context"

	"github.com/bull/text2sql-server/internal/stream"
)

// Stream runs Generate and writes its outcome to em. A failure becomes an
// error event with a client-safe message followed by done; the returned error
// is for the caller's logs only.
func (s *Service) Stream(ctx context.Context, req Request, em *stream.Emitter) error {
	result, err := s.Generate(ctx, req)
	if err != nil {
		if emitErr := em.Error(SafeMessage(err)); emitErr != nil {
			s.logger.Warn("Failed to write error event", "error", emitErr)
		}
		return err
	}

	if err := em.SQL(stream.SQLPayload{
		SQLQuery:   result.SQLQuery,
		Confidence: result.Confidence,
		TablesUsed: result.TablesUsed,
	}); err != nil {
		return err
	}

	if req.IncludeExplanation && result.Explanation != "" {
		if err := em.Explanation(ctx, result.Explanation); err != nil {
			// Client went away; stop without further events.
			s.logger.Debug("Explanation stream stopped", "error", err)
			return err
		}
	}

	return em.Done()
}
