package billing

import (
	"github.com/ManuelReschke/PayLedger/internal/pkg/metrics"
)

// Service bundles the billing components that share one repository, processor and
// configuration.
type Service struct {
	Catalog   *Catalog
	Ledger    *Ledger
	Engine    *Engine
	Processor PaymentProcessor
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Locker  Locker
	Metrics *metrics.Collector
}

// NewService wires catalog, ledger and engine from injected dependencies.
func NewService(repo Repository, proc PaymentProcessor, users UserDirectory, cfg Config, opts Options) *Service {
	return &Service{
		Catalog:   NewCatalog(repo, proc, cfg, opts.Metrics),
		Ledger:    NewLedger(repo, proc, users, cfg, opts.Metrics),
		Engine:    NewEngine(repo, opts.Locker, cfg, opts.Metrics),
		Processor: proc,
	}
}
