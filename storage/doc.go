// Package storage provides a typed, versioned key-value abstraction over a
// host-supplied, asynchronous, namespaced store.
//
// # Overview
//
// The host store exposes multiple isolated areas (local, session, sync,
// managed), each an opaque asynchronous map behind the Driver interface.
// Storage routes namespaced keys of the form "<area>:<bareKey>" to the right
// driver and layers three facilities on top:
//
//   - Metadata: every data key owns an optional shadow entry under
//     "<bareKey>$" holding a property mapping. Updates are shallow merges;
//     nested values are replaced wholesale.
//   - Watching: per-key subscriptions fed by the driver's change stream,
//     including changes made by other execution contexts sharing the store.
//   - Versioned items: Item[T] binds a key to a declared schema version and
//     an ordered migration table, replayed on demand by Migrate.
//
// # Namespaced Keys
//
// A key must carry a recognized area prefix; absence of one is a construction
// error, never a silent default:
//
//	area, bareKey, err := storage.ResolveKey("local:counter")
//
// # Items
//
// Item definitions are immutable and typically created at program start:
//
//	counter, err := storage.NewItem[int](store, "local:counter", storage.ItemOptions[int]{
//	    Fallback: 0,
//	})
//
//	value, err := counter.GetValue(ctx) // 0 until first SetValue
//	err = counter.SetValue(ctx, 5)
//
// Versioned items declare their expected schema version and how to reach it
// from every older version:
//
//	settings, err := storage.NewItem[Settings](store, "sync:settings", storage.ItemOptions[Settings]{
//	    Version: 3,
//	    Migrations: map[int]storage.MigrateFunc{
//	        2: renameThemeField,
//	        3: splitProxyConfig,
//	    },
//	})
//	err = settings.Migrate(ctx)
//
// Migration keys must be exactly the consecutive integers from 2 up to the
// declared version; gaps are rejected at definition time. Stored data without
// a version tag is treated as schema version 1. GetValue never migrates
// implicitly.
//
// # Concurrency
//
// Storage holds no value cache; every read reflects driver state at call
// time. Two concurrent writes to the same key race and the last write
// observed by the host wins. Concurrent Migrate calls converge provided
// migration functions are pure and deterministic, which is a caller
// obligation. Watch callbacks run on the driver's dispatch goroutine, never
// synchronously inside the write that produced the change; subscriptions are
// process-local and must be re-established after a restart.
//
// # Errors
//
// Failures surface to the immediate caller classified through the module's
// errors package; nothing is retried or swallowed in this layer. Driver
// failures pass through with their sentinel preserved for errors.Is.
package storage
