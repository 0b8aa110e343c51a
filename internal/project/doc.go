// Package project turns a git repository into a history of database dumps.
//
// Each project owns one repository at {dir}/{name} with a single tracked file,
// dump.sql. Saving a snapshot overwrites that file and commits it; reading a
// snapshot fetches the file as of a revision:
//
//	p, err := project.Create(ctx, backend, dir, "shop", "postgres://localhost/shop")
//	id, err := p.CommitDump(ctx, "nightly", dump)
//	latest, err := p.LatestDump(ctx)
//	old, err := p.DumpAt(ctx, id)
//
// History-aware work is delegated to a revision.Backend, so the same code runs
// against git on disk or the in-memory backend in tests.
//
// Manager ties a project to the registry: it resolves a project's database
// URI by name, creates repositories under a common root, and records
// snapshot metrics.
//
// Concurrency:
//
// A project assumes a single writer. Nothing locks the dump file or the
// repository, so two processes committing the same project at once race:
// the last write to dump.sql wins and the commits land in whatever order
// git serializes them. Callers that may run concurrently (for example
// overlapping cron jobs) must hold their own lock per project.
package project
