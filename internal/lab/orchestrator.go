// internal/lab/orchestrator.go
package lab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jpillora/sizestr"
	"gopkg.in/yaml.v3"

	"github.com/kishoresukumaran/reactflow-containerlab/internal/clab"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/models"
	"github.com/kishoresukumaran/reactflow-containerlab/internal/remote"
)

const DefaultBaseDir = "/opt"

// Operation names, used in logs.
const (
	OpInspect     = "inspect"
	OpDeploy      = "deploy"
	OpDestroy     = "destroy"
	OpReconfigure = "reconfigure"
)

// Operation states, logged at debug level.
const (
	stateValidating = "validating"
	stateConnecting = "connecting"
	stateExecuting  = "executing"
	stateCompleted  = "completed"
	stateFailed     = "failed"
)

// LocalRunner runs a clab command on the API host.
type LocalRunner func(ctx context.Context, runtime, username string, args ...string) (stdout, stderr string, err error)

type Options struct {
	BaseDir string // Remote directory topologies are uploaded to and resolved against
	Runtime string // Container runtime passed to clab, docker when empty
	// Credentials is the template for every remote target; Host is filled
	// in per request.
	Credentials remote.Target
	LocalRunner LocalRunner
}

// Orchestrator runs lab lifecycle operations against lab hosts. Every
// operation opens its own session and closes it before returning.
type Orchestrator struct {
	dialer remote.Dialer
	opts   Options
}

func NewOrchestrator(dialer remote.Dialer, opts Options) *Orchestrator {
	if opts.BaseDir == "" {
		opts.BaseDir = DefaultBaseDir
	}
	if opts.LocalRunner == nil {
		opts.LocalRunner = clab.RunClabCommand
	}
	return &Orchestrator{dialer: dialer, opts: opts}
}

// BaseDir returns the directory relative topology paths resolve against.
func (o *Orchestrator) BaseDir() string {
	return o.opts.BaseDir
}

// Target builds the remote target for host from the configured credentials.
func (o *Orchestrator) Target(host string) remote.Target {
	t := o.opts.Credentials
	t.Host = host
	return t
}

// DeployRequest describes an uploaded topology to deploy on Host.
type DeployRequest struct {
	Host      string
	LocalPath string // Temporary copy of the upload; always removed
	Filename  string // Name the topology gets on the lab host
	Username  string // Requesting user, for logs
}

// TopologyRequest targets an already uploaded topology on Host.
type TopologyRequest struct {
	Host     string
	TopoFile string // Absolute, or relative to the base directory
	Cleanup  bool   // destroy only
	Username string
}

// Inspect lists deployed labs grouped by topology file. An empty host
// inspects the API host itself.
func (o *Orchestrator) Inspect(ctx context.Context, host, username string) ([]models.LabDescriptor, error) {
	var stdout, stderr string
	if host == "" {
		logState(OpInspect, stateExecuting, "local")
		out, errOut, err := o.opts.LocalRunner(ctx, o.opts.Runtime, username, clab.InspectAllArgs()...)
		stdout, stderr = out, errOut
		if err != nil && !clab.IsNoLabsOutput(stdout, stderr) {
			logState(OpInspect, stateFailed, "local")
			return nil, err
		}
	} else {
		res, err := o.inspectRemote(ctx, host)
		if err != nil {
			logState(OpInspect, stateFailed, host)
			return nil, err
		}
		stdout, stderr = res.Stdout, res.Stderr
		if !res.Success() && !clab.IsNoLabsOutput(stdout, stderr) {
			logState(OpInspect, stateFailed, host)
			return nil, &ExitError{Command: "clab inspect", ExitCode: res.ExitCode, Stderr: stderr}
		}
	}

	if clab.IsNoLabsOutput(stdout, stderr) {
		log.Debug("No labs deployed", "host", host)
		return []models.LabDescriptor{}, nil
	}
	parsed, err := clab.ParseInspect(stdout)
	if err != nil {
		logState(OpInspect, stateFailed, host)
		return nil, err
	}
	logState(OpInspect, stateCompleted, host)
	return clab.GroupLabs(o.opts.BaseDir, parsed.Containers), nil
}

func (o *Orchestrator) inspectRemote(ctx context.Context, host string) (remote.ExecResult, error) {
	logState(OpInspect, stateConnecting, host)
	sess, err := o.dialer.Dial(ctx, o.Target(host))
	if err != nil {
		return remote.ExecResult{}, err
	}
	defer sess.Close()

	logState(OpInspect, stateExecuting, host)
	cmd := remote.Command{Args: clab.BuildArgs(o.opts.Runtime, clab.InspectAllArgs()...)}
	return sess.Run(ctx, cmd, nil)
}

// Deploy uploads the topology and deploys it. A *ValidationError is
// returned before anything is emitted; every other outcome, including a
// failed connect, ends the stream with a single result.
func (o *Orchestrator) Deploy(ctx context.Context, req DeployRequest, em Emitter) error {
	filePath, err := o.deploy(ctx, req, em)
	if isValidation(err) {
		return err
	}
	return o.finish(OpDeploy, req.Host, em, err, Outcome{
		Message:  fmt.Sprintf("Lab deployed successfully from %s", filePath),
		FilePath: filePath,
	})
}

func (o *Orchestrator) deploy(ctx context.Context, req DeployRequest, em Emitter) (string, error) {
	defer removeArtifact(req.LocalPath)

	logState(OpDeploy, stateValidating, req.Host)
	labName, err := req.validate()
	if err != nil {
		return "", err
	}

	remotePath := path.Join(o.opts.BaseDir, req.Filename)
	sess, err := o.connect(ctx, OpDeploy, req.Host, em)
	if err != nil {
		return remotePath, err
	}
	defer sess.Close()

	logState(OpDeploy, stateExecuting, req.Host)
	if err := sess.MkdirAll(ctx, o.opts.BaseDir); err != nil {
		return remotePath, err
	}
	size := int64(0)
	if info, statErr := os.Stat(req.LocalPath); statErr == nil {
		size = info.Size()
	}
	em.Log(models.StreamInfo, fmt.Sprintf("Uploading %s (%s) to %s", req.Filename, sizestr.ToString(size), remotePath))
	if err := sess.Upload(ctx, req.LocalPath, remotePath); err != nil {
		return remotePath, err
	}
	em.Log(models.StreamInfo, fmt.Sprintf("Deploying lab '%s'", labName))

	_, err = o.run(ctx, sess, clab.DeployArgs(remotePath, false), em)
	return remotePath, err
}

// Destroy tears down the lab deployed from req.TopoFile.
func (o *Orchestrator) Destroy(ctx context.Context, req TopologyRequest, em Emitter) error {
	return o.onTopology(ctx, OpDestroy, req, em, clab.DestroyArgs)
}

// Reconfigure redeploys the lab from req.TopoFile with --reconfigure.
func (o *Orchestrator) Reconfigure(ctx context.Context, req TopologyRequest, em Emitter) error {
	req.Cleanup = false
	return o.onTopology(ctx, OpReconfigure, req, em, func(topo string, _ bool) []string {
		return clab.DeployArgs(topo, true)
	})
}

func (o *Orchestrator) onTopology(ctx context.Context, op string, req TopologyRequest, em Emitter, argsFor func(topo string, cleanup bool) []string) error {
	logState(op, stateValidating, req.Host)
	if err := req.validate(); err != nil {
		return err
	}
	topoPath := clab.ResolveTopoPath(o.opts.BaseDir, req.TopoFile)

	err := func() error {
		sess, err := o.connect(ctx, op, req.Host, em)
		if err != nil {
			return err
		}
		defer sess.Close()

		logState(op, stateExecuting, req.Host)
		_, err = o.run(ctx, sess, argsFor(topoPath, req.Cleanup), em)
		return err
	}()

	verb := "destroyed"
	if op == OpReconfigure {
		verb = "reconfigured"
	}
	return o.finish(op, req.Host, em, err, Outcome{
		Message:  fmt.Sprintf("Lab %s successfully (%s)", verb, topoPath),
		FilePath: topoPath,
	})
}

func (o *Orchestrator) connect(ctx context.Context, op, host string, em Emitter) (remote.Session, error) {
	logState(op, stateConnecting, host)
	target := o.Target(host)
	em.Log(models.StreamInfo, fmt.Sprintf("Connecting to %s as %s", target.Addr(), target.Username))

	sess, err := o.dialer.Dial(ctx, target)
	if err != nil {
		em.Log(models.StreamStderr, fmt.Sprintf("Connection to %s failed: %v", target.Addr(), err))
		return nil, err
	}
	em.Log(models.StreamInfo, fmt.Sprintf("Connected to %s", host))
	return sess, nil
}

// run executes a clab subcommand in the base directory, streaming output
// line by line. A non-zero exit status becomes an *ExitError.
func (o *Orchestrator) run(ctx context.Context, sess remote.Session, args []string, em Emitter) (remote.ExecResult, error) {
	cmd := remote.Command{Args: clab.BuildArgs(o.opts.Runtime, args...), Dir: o.opts.BaseDir}
	em.Log(models.StreamInfo, "Executing: "+cmd.String())

	lines := newLineSplitter(em)
	res, err := sess.Run(ctx, cmd, lines.Write)
	lines.Flush()
	if err != nil {
		return res, err
	}
	if !res.Success() {
		return res, &ExitError{Command: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}

// finish emits the single terminal result. It runs after every session
// and artifact has been released.
func (o *Orchestrator) finish(op, host string, em Emitter, err error, ok Outcome) error {
	if err != nil {
		logState(op, stateFailed, host)
		log.Errorf("Lab %s failed on host '%s': %v", op, host, err)
		em.Result(Outcome{Success: false, FilePath: ok.FilePath, Error: failureText(err)})
		return err
	}
	logState(op, stateCompleted, host)
	log.Infof("Lab %s succeeded on host '%s' (%s)", op, host, ok.FilePath)
	ok.Success = true
	em.Result(ok)
	return nil
}

// failureText is what the client sees in a failed result: the command's
// stderr when it ran and failed, the error otherwise.
func failureText(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if s := strings.TrimSpace(exitErr.Stderr); s != "" {
			return s
		}
	}
	return err.Error()
}

func (r DeployRequest) validate() (labName string, err error) {
	if strings.TrimSpace(r.Host) == "" {
		return "", &ValidationError{Field: "serverIp", Reason: "is required"}
	}
	if r.LocalPath == "" {
		return "", &ValidationError{Field: "file", Reason: "is required"}
	}
	if _, err := clab.SanitizeFilename(r.Filename); err != nil || r.Filename != strings.TrimSpace(r.Filename) {
		return "", &ValidationError{Field: "file", Reason: fmt.Sprintf("has an invalid name '%s'", r.Filename)}
	}
	return topologyName(r.LocalPath)
}

func (r TopologyRequest) validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return &ValidationError{Field: "serverIp", Reason: "is required"}
	}
	if strings.TrimSpace(r.TopoFile) == "" {
		return &ValidationError{Field: "topoFile", Reason: "is required"}
	}
	return nil
}

// topologyName reads the lab name from a containerlab topology file.
func topologyName(localPath string) (string, error) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", &ValidationError{Field: "file", Reason: fmt.Sprintf("cannot be read: %v", err)}
	}
	var topo struct {
		Name     string    `yaml:"name"`
		Topology yaml.Node `yaml:"topology"`
	}
	if err := yaml.Unmarshal(content, &topo); err != nil {
		return "", &ValidationError{Field: "file", Reason: fmt.Sprintf("is not valid YAML: %v", err)}
	}
	if strings.TrimSpace(topo.Name) == "" {
		return "", &ValidationError{Field: "file", Reason: "has no top-level 'name'"}
	}
	return topo.Name, nil
}

func removeArtifact(localPath string) {
	if localPath == "" {
		return
	}
	if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove uploaded topology", "path", localPath, "error", err)
		return
	}
	log.Debug("Removed uploaded topology", "path", localPath)
}

func logState(op, state, host string) {
	log.Debug("Lab operation", "op", op, "state", state, "host", host)
}
