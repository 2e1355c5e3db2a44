package audit

import (
	"context"
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/consumer"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"go.uber.org/zap"
)

// CollectionLog writes one structured log line per committed collection write.
func CollectionLog(log *zap.Logger) consumer.Handler {
	log = logger.OrGlobal(log, "collections")
	return consumer.HandlerFunc(func(_ context.Context, env model.Envelope) error {
		var p model.CollectionReplaced
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		if !p.Kind.Valid() || p.RetreatID <= 0 {
			return consumer.Malformed(fmt.Errorf("%s: bad collection reference %d/%q", env.Type, p.RetreatID, p.Kind))
		}
		log.Info("collection replaced",
			zap.Int64("retreat_id", p.RetreatID),
			zap.String("kind", p.Kind.String()),
			zap.Int64("version", p.Version),
			zap.Int("count", p.Count),
			zap.String("trace_id", env.TraceID))
		return nil
	})
}
