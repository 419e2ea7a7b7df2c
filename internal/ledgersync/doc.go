/*
Package ledgersync implements the ledger catch-up protocol: a node detects it
is behind its peers, pulls batches of committed transactions from them,
verifies each batch and hands it to the ledger for commit.

Three parts cooperate:

LocalSyncService is the driver. It owns a SyncState (Idle, SyncCheck or
Syncing) and replaces it on every event it handles. It never blocks: network
requests and timers leave through an Outbox and come back later as events.
Responses and timeouts carry the request they belong to, so anything that
arrives after the driver moved on is ignored.

	Idle --SyncCheckTrigger--> SyncCheck --peer ahead--> Syncing
	 ^                            |                        |
	 +------no peer ahead---------+                        |
	 +---------------------target reached------------------+

RemoteSyncService answers status and sync requests from the local ledger and
pushes ledger status updates to a few random peers after local commits.

Reactor wires both to a p2p channel and runs the driver on a single event loop
goroutine.

Each batch passes three checks before it is committed, in order: the tail
proof is signed by more than two thirds of the current validator set's voting
power, every signature verifies, and folding the transaction hashes onto the
head accumulator yields the tail accumulator.
*/
package ledgersync
