package redis

import (
	"context"

	"github.com/ibs-source/mqtt-router/internal/route"
)

// pruneCollection drops index entries for a stream that no longer exists,
// for example after an operator deleted the key. Empty namespaces are
// dropped as well.
func (s *Storage) pruneCollection(ctx context.Context, ns, name string) {
	exists, err := s.c.rdb.Exists(ctx, s.streamKey(route.Destination{Namespace: ns, Collection: name})).Result()
	if err != nil {
		s.c.log.Warn("failed to check collection %s/%s: %v", ns, name, err)
		return
	}
	if exists > 0 {
		return
	}

	if err := s.c.rdb.SRem(ctx, s.c.key("namespaces", ns), name).Err(); err != nil {
		s.c.log.Warn("failed to prune collection %s/%s: %v", ns, name, err)
		return
	}
	s.c.log.Info("Pruned missing collection %s/%s from index", ns, name)

	left, err := s.c.rdb.SCard(ctx, s.c.key("namespaces", ns)).Result()
	if err != nil || left > 0 {
		return
	}
	if err := s.c.rdb.SRem(ctx, s.c.key("namespaces"), ns).Err(); err != nil {
		s.c.log.Warn("failed to prune namespace %s: %v", ns, err)
		return
	}
	s.c.log.Info("Pruned empty namespace %s from index", ns)
}
