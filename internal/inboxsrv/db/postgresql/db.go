// Package postgresql implements the inbox database interfaces with
// PostgreSQL stored procedures. The procedures own all write atomicity, no
// multi-statement transactions are started here.
package postgresql

import (
	"github.com/devatlas/devatlas/internal/inboxsrv/db/dbmanager"
)

type inboxDb struct {
	lm *ledgerManager
	qm *queueManager
	om *ownerManager
}

func NewInboxDb(c dbmanager.Conn) (*ledgerManager, *queueManager, *ownerManager) {
	h := &inboxDb{}
	h.lm = newLedgerManager(c)
	h.qm = newQueueManager(c)
	h.om = newOwnerManager(c)
	return h.lm, h.qm, h.om
}
