package cli

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/kyma-incubator/alerting-reconciler/pkg/alerting"
	e "github.com/kyma-incubator/alerting-reconciler/pkg/error"
	"github.com/kyma-incubator/alerting-reconciler/pkg/metrics"
	"github.com/kyma-incubator/alerting-reconciler/pkg/reconciler"
)

// Operation is one installer workflow.
type Operation func(ctx context.Context, installer *alerting.Installer) (*reconciler.Report, error)

// Run executes an installer workflow, prints its summary and stores the run metrics.
// The returned error is a FatalError if a precondition was not fulfilled.
func (o *Options) Run(command string, operation Operation, out io.Writer) error {
	ctx, cancel := NewContext()
	defer cancel()

	runID := uuid.NewString()
	log := o.Logger().With("command", command, "runID", runID)

	cfg, err := o.AlertingConfig()
	if err != nil {
		return err
	}
	client, err := o.KubernetesClient()
	if err != nil {
		return e.NewFatalError(err, "cannot connect to the control plane")
	}

	collector := metrics.NewRunCollector(command, runID, log)
	installer, err := alerting.NewInstaller(client, cfg, log, alerting.WithMetrics(collector))
	if err != nil {
		return err
	}

	report, err := operation(ctx, installer)
	if o.MetricsFile != "" {
		if writeErr := collector.WriteToTextfile(o.MetricsFile); writeErr != nil {
			log.Warnf("Failed to write metrics file '%s': %s", o.MetricsFile, writeErr)
		}
	}
	if report != nil && len(report.Results()) > 0 {
		if printErr := o.PrintReport(out, report); printErr != nil {
			log.Warnf("Failed to print run summary: %s", printErr)
		}
	}
	return err
}
