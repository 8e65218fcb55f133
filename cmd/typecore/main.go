// Command typecore is the operational front door described in
// SPEC_FULL.md §6: schema migration (C9) and health checks (C10)
// against a Postgres-backed Snapshot, plus a status command that prints
// the schema's type counts — not
// the client wire protocol, which remains an external collaborator.
package main

func main() {
	Execute()
	ShowUpdateNoticeIfAvailable()
}
