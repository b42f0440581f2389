package store

import (
	"gorm.io/gorm"
)

type Store interface {
	Close() error
	Request() Request
	WorkOrder() WorkOrder
	ProvisioningRun() ProvisioningRun
	VM() VM
	GovernanceRule() GovernanceRule
	Notification() Notification
	Ledger() Ledger
}

type DataStore struct {
	db              *gorm.DB
	request         Request
	workOrder       WorkOrder
	provisioningRun ProvisioningRun
	vm              VM
	governanceRule  GovernanceRule
	notification    Notification
	ledger          Ledger
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:              db,
		request:         NewRequest(db),
		workOrder:       NewWorkOrder(db),
		provisioningRun: NewProvisioningRun(db),
		vm:              NewVM(db),
		governanceRule:  NewGovernanceRule(db),
		notification:    NewNotification(db),
		ledger:          NewLedger(db),
	}
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *DataStore) Request() Request {
	return s.request
}

func (s *DataStore) WorkOrder() WorkOrder {
	return s.workOrder
}

func (s *DataStore) ProvisioningRun() ProvisioningRun {
	return s.provisioningRun
}

func (s *DataStore) VM() VM {
	return s.vm
}

func (s *DataStore) GovernanceRule() GovernanceRule {
	return s.governanceRule
}

func (s *DataStore) Notification() Notification {
	return s.notification
}

func (s *DataStore) Ledger() Ledger {
	return s.ledger
}
