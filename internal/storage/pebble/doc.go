// Package pebblestore wraps Pebble with an explicit fsync policy, batches,
// and a minimal metrics hook.
//
// The location queue persists every logical mutation through one committed
// batch, so the default policy here is FsyncModeAlways: an acknowledged
// append or prune survives a crash.
//
//	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	_ = db.CommitBatch(context.Background(), b)
//	b.Close()
package pebblestore
