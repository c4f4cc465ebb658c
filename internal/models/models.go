// internal/models/models.go
package models

// LoginRequest represents the payload for the login endpoint
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the payload returned after successful login
type LoginResponse struct {
	Token string `json:"token"`
}

// TopologyRequest is the JSON body for destroy and reconfigure.
type TopologyRequest struct {
	ServerIP string `json:"serverIp"`
	TopoFile string `json:"topoFile"`
	Cleanup  bool   `json:"cleanup,omitempty"` // Corresponds to --cleanup flag (destroy only)
}

// ErrorResponse represents a standard error message format
type ErrorResponse struct {
	Error string `json:"error"`
}

// InspectErrorResponse is returned when inspect output cannot be used.
type InspectErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RawOutput string `json:"rawOutput,omitempty"`
}

// GenericSuccessResponse for simple success messages
type GenericSuccessResponse struct {
	Message string `json:"message"`
}

// FreePortsResponse lists ports in [1024,65535] not bound on a lab host.
type FreePortsResponse struct {
	Success   bool   `json:"success"`
	FreePorts []int  `json:"freePorts"`
	Count     int    `json:"count"`
	Error     string `json:"error,omitempty"`
}

// --- Operation stream framing (application/x-ndjson) ---

const (
	EventTypeLog    = "log"
	EventTypeResult = "result"
)

// Origins of a log event.
const (
	StreamInfo   = "info"
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// StreamEvent is one line of an operation stream. Exactly one event with
// Type == "result" terminates every stream.
type StreamEvent struct {
	Type   string `json:"type"`
	Stream string `json:"stream,omitempty"` // log events only
	Line   string `json:"line,omitempty"`   // log events only

	Success  *bool  `json:"success,omitempty"` // result events only
	Message  string `json:"message,omitempty"`
	FilePath string `json:"filePath,omitempty"`
	Error    string `json:"error,omitempty"`
}

// --- Structs for parsing `clab inspect --format json` output ---

// ClabInspectOutput matches the top-level structure of `clab inspect --all --format json`
type ClabInspectOutput struct {
	Containers []ClabContainerInfo `json:"containers"`
}

// ClabContainerInfo matches the structure of each item in the "Containers" array.
// It is also the node descriptor returned inside a LabDescriptor.
type ClabContainerInfo struct {
	Name        string `json:"name"`         // Name of the container node
	ContainerID string `json:"container_id"` // Docker container ID (short)
	Image       string `json:"image"`        // Container image used
	Kind        string `json:"kind"`         // e.g., "srl", "linux", "nokia_srlinux"
	State       string `json:"state"`        // e.g., "running"
	IPv4Address string `json:"ipv4_address"` // Management IPv4 Address/Mask
	IPv6Address string `json:"ipv6_address"` // Management IPv6 Address/Mask
	LabName     string `json:"lab_name"`     // Name of the lab this node belongs to
	LabPath     string `json:"labPath"`      // Path to the topology file used
	Group       string `json:"group"`        // Group assigned in topology (Might not always be present)
	Owner       string `json:"owner"`        // OS user from clab inspect output
}

// Addresses returns the assigned management addresses, skipping empty ones.
func (c ClabContainerInfo) Addresses() []string {
	addrs := make([]string, 0, 2)
	for _, a := range []string{c.IPv4Address, c.IPv6Address} {
		if a != "" && a != "N/A" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// IsRunning reports whether clab considers the node running.
func (c ClabContainerInfo) IsRunning() bool {
	return c.State == "running"
}

// LabDescriptor groups the nodes deployed from one topology file.
type LabDescriptor struct {
	LabPath string              `json:"labPath"` // Absolute topology path, the grouping key
	LabName string              `json:"lab_name"`
	Owner   string              `json:"lab_owner"`
	Nodes   []ClabContainerInfo `json:"nodes"`
}

// --- Remote file browsing ---

// FileEntry describes one item in a remote directory listing.
type FileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"` // "directory" or "file"
	Size int64  `json:"size"`
}

// FileListResponse is returned by the remote directory listing endpoint.
type FileListResponse struct {
	Success  bool        `json:"success"`
	Path     string      `json:"path"`
	Contents []FileEntry `json:"contents"`
}

// FileReadResponse is returned by the remote file read endpoint.
type FileReadResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
	Content string `json:"content"`
}
