package model

// SyncStatus is the lifecycle state of the primary chain sync.
type SyncStatus string

const (
	SyncStatusIdle     SyncStatus = "idle"
	SyncStatusSyncing  SyncStatus = "syncing"
	SyncStatusRealtime SyncStatus = "realtime"
)

// NoBlock is the cursor value used before anything has been indexed.
const NoBlock int64 = -1

// Keys of the sync_state table.
const (
	StateLastIndexedBlock      = "last_indexed_block"
	StateSyncStatus            = "sync_status"
	StateLastBridgeSyncedBlock = "last_bridge_synced_block"
)

// Valid reports whether s is a known status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusIdle, SyncStatusSyncing, SyncStatusRealtime:
		return true
	default:
		return false
	}
}
