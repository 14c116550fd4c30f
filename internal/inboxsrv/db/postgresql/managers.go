package postgresql

import (
	"database/sql"

	"github.com/devatlas/devatlas/internal/inboxsrv/db/dbmanager"
)

// Ledger Manager
type ledgerManager struct {
	c dbmanager.Conn
}

func (lm *ledgerManager) conn() *sql.Conn {
	return lm.c.Conn()
}

func newLedgerManager(c dbmanager.Conn) *ledgerManager {
	return &ledgerManager{c: c}
}

// Queue Manager
type queueManager struct {
	c dbmanager.Conn
}

func (qm *queueManager) conn() *sql.Conn {
	return qm.c.Conn()
}

func newQueueManager(c dbmanager.Conn) *queueManager {
	return &queueManager{c: c}
}

// Owner Manager
type ownerManager struct {
	c dbmanager.Conn
}

func (om *ownerManager) conn() *sql.Conn {
	return om.c.Conn()
}

func newOwnerManager(c dbmanager.Conn) *ownerManager {
	return &ownerManager{c: c}
}
