package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/leadsplit/pkg/distribute"
	apperrors "github.com/odvcencio/leadsplit/pkg/errors"
	"github.com/odvcencio/leadsplit/pkg/ingest"
)

type splitOutput struct {
	FileName     string             `json:"fileName"`
	TotalRecords int                `json:"totalRecords"`
	PlanDigest   string             `json:"planDigest"`
	Shares       []distribute.Share `json:"shares"`
}

// runSplitCommand distributes a local file across named agents and prints
// the plan. Agent ids are the names as given.
func runSplitCommand(args []string, stdout io.Writer) error {
	fs := newFlagSet("split")
	file := fs.String("file", "", "CSV, XLSX or XLS file to split")
	agentList := fs.String("agents", "", "comma-separated agent names in distribution order")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitConfig)
	}
	if strings.TrimSpace(*file) == "" {
		return withExitCode(errors.New("split requires -file"), exitConfig)
	}

	var roster []distribute.AgentRef
	for _, name := range strings.Split(*agentList, ",") {
		if name = strings.TrimSpace(name); name != "" {
			roster = append(roster, distribute.AgentRef{ID: name, Name: name})
		}
	}

	format, err := ingest.FormatFromFilename(*file)
	if err != nil {
		return describe(err)
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := ingest.Parse(f, format)
	if err != nil {
		return describe(err)
	}
	plan, err := distribute.Distribute(records, roster)
	if err != nil {
		return describe(err)
	}
	digest, err := plan.Digest()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(splitOutput{
		FileName:     filepath.Base(*file),
		TotalRecords: plan.TotalRecords,
		PlanDigest:   digest,
		Shares:       plan.Shares,
	})
}

// describe swaps a structured error for its operator-facing message.
func describe(err error) error {
	structured, ok := apperrors.As(err)
	if !ok {
		return err
	}
	msg := structured.Public()
	for _, hint := range structured.Remediation {
		msg += "\n  hint: " + hint
	}
	return withExitCode(fmt.Errorf("%s: %w", msg, err), exitError)
}
