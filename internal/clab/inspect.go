package clab

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/models"
)

// ParseError means clab produced output that could not be decoded.
// Raw keeps the unparsed output for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse clab inspect output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsNoLabsOutput reports whether clab said there is nothing deployed.
func IsNoLabsOutput(stdout, stderr string) bool {
	for _, s := range []string{stdout, stderr} {
		if strings.Contains(s, "no containers found") ||
			strings.Contains(s, "no containerlab labs found") ||
			strings.Contains(s, "Could not find containers") {
			return true
		}
	}
	return false
}

// ParseInspect decodes `clab inspect --all --format json` output.
// Empty output and a bare "[]" or "{}" decode to no containers.
func ParseInspect(stdout string) (models.ClabInspectOutput, error) {
	var out models.ClabInspectOutput
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" || trimmed == "[]" || trimmed == "{}" {
		out.Containers = []models.ClabContainerInfo{}
		return out, nil
	}
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return out, &ParseError{Raw: stdout, Err: err}
	}
	if out.Containers == nil {
		out.Containers = []models.ClabContainerInfo{}
	}
	return out, nil
}

// GroupLabs groups nodes by their topology file, resolved against baseDir.
// Groups keep the order in which their first node appeared; nodes keep
// their input order within a group.
func GroupLabs(baseDir string, containers []models.ClabContainerInfo) []models.LabDescriptor {
	labs := make([]models.LabDescriptor, 0)
	index := make(map[string]int)

	for _, c := range containers {
		labPath := ResolveTopoPath(baseDir, c.LabPath)
		c.LabPath = labPath

		i, ok := index[labPath]
		if !ok {
			i = len(labs)
			index[labPath] = i
			labs = append(labs, models.LabDescriptor{
				LabPath: labPath,
				LabName: c.LabName,
				Owner:   c.Owner,
				Nodes:   []models.ClabContainerInfo{},
			})
		}
		labs[i].Nodes = append(labs[i].Nodes, c)
	}
	return labs
}
