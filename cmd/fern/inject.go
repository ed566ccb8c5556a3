package main

import (
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"

	auditrepo "github.com/Ramsey-B/fern/internal/repositories/audit"
	"github.com/Ramsey-B/fern/pkg/aggregation"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/fieldmapping"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/grouping"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/processor"
	aggregationroutes "github.com/Ramsey-B/fern/pkg/routes/aggregation"
	groupingroutes "github.com/Ramsey-B/fern/pkg/routes/grouping"
	mappingroutes "github.com/Ramsey-B/fern/pkg/routes/mapping"
	profileroutes "github.com/Ramsey-B/fern/pkg/routes/profile"
	validationroutes "github.com/Ramsey-B/fern/pkg/routes/validation"
	"github.com/Ramsey-B/fern/pkg/schema"
)

// routeServices are the instances the route handlers resolve per request.
// projector and emitter are nil when graph projection or the producer is off.
type routeServices struct {
	logger     ectologger.Logger
	grouper    *grouping.Engine
	projector  *graph.GroupProjector
	emitter    *events.Emitter
	aggregator *aggregation.Aggregator
	mapper     *fieldmapping.Mapper
	processor  *processor.Processor
	profiles   *merging.Engine
	audits     *auditrepo.Repository
	validation *schema.ValidationService
}

// registerServices fills the default container the handlers read from
func registerServices(s routeServices) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}

	registrations := []func() error{
		func() error { return ectoinject.RegisterInstance[ectologger.Logger](container, s.logger) },
		func() error { return ectoinject.RegisterInstance[groupingroutes.Grouper](container, s.grouper) },
		func() error { return ectoinject.RegisterInstance[aggregationroutes.Aggregator](container, s.aggregator) },
		func() error { return ectoinject.RegisterInstance[mappingroutes.Mapper](container, s.mapper) },
		func() error { return ectoinject.RegisterInstance[profileroutes.Processor](container, s.processor) },
		func() error { return ectoinject.RegisterInstance[profileroutes.Reader](container, s.profiles) },
		func() error { return ectoinject.RegisterInstance[profileroutes.AuditLister](container, s.audits) },
		func() error { return ectoinject.RegisterInstance[profileroutes.Validator](container, s.validation) },
		func() error { return ectoinject.RegisterInstance[validationroutes.FieldValidator](container, s.validation) },
	}
	// optional services stay unregistered so handlers see them as absent
	if s.projector != nil {
		registrations = append(registrations, func() error {
			return ectoinject.RegisterInstance[groupingroutes.Projector](container, s.projector)
		})
	}
	if s.emitter != nil {
		registrations = append(registrations, func() error {
			return ectoinject.RegisterInstance[groupingroutes.Emitter](container, s.emitter)
		})
	}

	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}
