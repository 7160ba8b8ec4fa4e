// Package cluster holds the slave-step-copy partition distribution used
// when a partitioned pipeline is split across cluster servers.
//
// Each entry maps a (server, partition schema, copy) triple to the
// partition number that copy serves. A producer repartitioning into a
// clustered stage looks up the destination of each output channel in the
// table; a channel without an entry is a configuration error.
//
// The master publishes the table through a Store before the slaves start.
// MemoryStore serves single-process runs and tests; RedisStore shares the
// table between processes:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cluster.NewRedisStore(cluster.RedisConfig{Redis: rdb})
//	err := store.Save(ctx, runID, table)
package cluster
