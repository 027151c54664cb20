package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/kyma-incubator/alerting-reconciler/pkg/reconciler"
)

var SupportedOutputFormats = []string{"table", "json", "yaml"}

// resultRow is the printable form of one reconciliation result.
type resultRow struct {
	Kind      string `json:"kind" yaml:"kind"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
	Action    string `json:"action" yaml:"action"`
	Status    string `json:"status" yaml:"status"`
	Message   string `json:"message,omitempty" yaml:"message,omitempty"`
}

func (r resultRow) columns() []string {
	return []string{r.Kind, r.Namespace, r.Name, r.Action, r.Status, r.Message}
}

// ReportFormatter renders the summary of a run, one row per result.
type ReportFormatter struct {
	rows   []resultRow
	format string
}

func NewReportFormatter(format string) (*ReportFormatter, error) {
	if !isSupportedFormat(format) {
		return nil, fmt.Errorf("Output format '%s' is not supported: please choose between '%s'",
			format, strings.Join(SupportedOutputFormats, "', '"))
	}
	return &ReportFormatter{format: format}, nil
}

func isSupportedFormat(format string) bool {
	for _, supportedFormat := range SupportedOutputFormats {
		if supportedFormat == format {
			return true
		}
	}
	return false
}

// AddReport adds all results of the report in execution order.
func (rf *ReportFormatter) AddReport(report *reconciler.Report) {
	for _, result := range report.Results() {
		rf.AddResult(result)
	}
}

func (rf *ReportFormatter) AddResult(result *reconciler.Result) {
	row := resultRow{
		Action:  string(result.Action),
		Status:  string(result.Status),
		Message: result.Message,
	}
	if result.Resource != nil {
		row.Kind = string(result.Resource.Kind)
		row.Namespace = result.Resource.Namespace
		row.Name = result.Resource.Name
	}
	if result.Error != nil {
		row.Message = result.Error.Error()
	}
	rf.rows = append(rf.rows, row)
}

func (rf *ReportFormatter) Output(writer io.Writer) error {
	var err error
	switch rf.format {
	case "table":
		rf.tableOutput(writer)
	case "json":
		err = rf.marshal(writer, json.Marshal)
	case "yaml":
		err = rf.marshal(writer, yaml.Marshal)
	}
	return err
}

func (rf *ReportFormatter) marshal(writer io.Writer, marshalFct func(interface{}) ([]byte, error)) error {
	rows := rf.rows
	if rows == nil {
		rows = []resultRow{}
	}
	data, err := marshalFct(rows)
	if err != nil {
		return err
	}
	_, err = writer.Write(data)
	return err
}

func (rf *ReportFormatter) tableOutput(writer io.Writer) {
	table := tablewriter.NewWriter(writer)
	table.SetHeader([]string{"Kind", "Namespace", "Name", "Action", "Status", "Message"})
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetAutoWrapText(false)
	for _, row := range rf.rows {
		table.Append(row.columns())
	}
	table.Render()
}

// PrintReport renders the report in the configured output format.
func (o *Options) PrintReport(writer io.Writer, report *reconciler.Report) error {
	formatter, err := NewReportFormatter(o.OutputFormat)
	if err != nil {
		return err
	}
	formatter.AddReport(report)
	return formatter.Output(writer)
}
