package fd

import "sync"

// Conn records which host/slot a dispatched worker pid occupies, the
// bookkeeping spec §4.4 step 1 needs to turn a bare pid off SF_FIN
// back into "which FSA row and slot do I clear" (spec: "for each
// reaped PID, locate its connection-table slot").
type Conn struct {
	HostPos   int
	SlotIndex int
	HostAlias string
}

// ConnTable is the in-memory pid -> Conn map D maintains across a
// scheduler tick's dispatch and reap phases.
type ConnTable struct {
	mu    sync.Mutex
	byPID map[int32]Conn
}

// NewConnTable builds an empty ConnTable.
func NewConnTable() *ConnTable {
	return &ConnTable{byPID: make(map[int32]Conn)}
}

// Register records that pid now occupies (hostPos, slotIndex),
// called right after D forks a worker and writes its job-slot record
// (spec §4.4 step 3).
func (c *ConnTable) Register(pid int32, hostPos, slotIndex int, hostAlias string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPID[pid] = Conn{HostPos: hostPos, SlotIndex: slotIndex, HostAlias: hostAlias}
}

// Lookup returns the Conn registered for pid, if any.
func (c *ConnTable) Lookup(pid int32) (Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.byPID[pid]
	return conn, ok
}

// Remove drops pid's entry once its slot has been cleared.
func (c *ConnTable) Remove(pid int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byPID, pid)
}

// Len reports the number of tracked connections, mainly for tests.
func (c *ConnTable) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byPID)
}
