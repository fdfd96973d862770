package constants

// Advisory lock ids shared by every instance pointed at the same database.
const (
	MigrationLock = iota + 1
	EngineLock
)

var Locks = []int{
	MigrationLock,
	EngineLock,
}
